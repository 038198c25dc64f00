package server

import (
	"context"
	"errors"
	"net/http"

	"range-meter/src/helpers"
	"range-meter/src/models"
	"range-meter/src/protocol"
	"range-meter/src/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub inputs
// -----------------------------------------------------------------------------

type clientRequest struct {
	client *Client
	msg    protocol.ClientMessage
}

// tickUpdate is an accepted tick together with the package it updated.
type tickUpdate struct {
	tick       models.MTick
	pkg        models.MDailyRangePackage
	hasPackage bool
}

// notice is the closed set of low-rate hub events.
type notice interface{ isNotice() }

type packageReady struct {
	client *Client
	symbol string
	pkg    models.MDailyRangePackage
	err    error
}

type symbolReset struct {
	symbol string
	pkg    models.MDailyRangePackage
	err    error
}

type sessionStatus struct {
	status session.Status
}

type pipelineEnded struct {
	symbol string
	gen    uint64
}

type query struct {
	fn   func()
	done chan struct{}
}

func (packageReady) isNotice()  {}
func (symbolReset) isNotice()   {}
func (sessionStatus) isNotice() {}
func (pipelineEnded) isNotice() {}
func (query) isNotice()         {}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop. Every subscription change and every
// delivery happens here, so the router needs no locks.
func (s *Server) handleWebsockets() {
	for {
		select {
		case <-s.ctx.Done():
			for client := range s.clients {
				s.dropClient(client)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.clientCount.Store(int64(len(s.clients)))
			s.Metrics.ConnectedClients.Set(float64(len(s.clients)))
			if st := s.Session.Status(); st != session.StatusConnected {
				client.deliver(protocol.StatusMessage{Value: statusValue(st)})
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				s.dropClient(client)
			}

		case req := <-s.requests:
			if _, ok := s.clients[req.client]; !ok {
				continue
			}
			switch m := req.msg.(type) {
			case protocol.Subscribe:
				s.subscribe(req.client, m.Symbol)
			case protocol.Unsubscribe:
				s.router.Unsubscribe(req.client.id, m.Symbol)
				s.syncSubscriptionGauge()
			}

		case <-s.ticks.wake:
			for _, upd := range s.ticks.take() {
				s.deliverTick(upd)
			}

		case n := <-s.notices:
			s.handleNotice(n)
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Server) dropClient(client *Client) {
	s.router.RemoveClient(client.id)
	delete(s.clients, client)
	close(client.control)
	s.clientCount.Store(int64(len(s.clients)))
	s.Metrics.ConnectedClients.Set(float64(len(s.clients)))
	s.syncSubscriptionGauge()
}

func (s *Server) syncSubscriptionGauge() {
	n := s.router.Count()
	s.subCount.Store(int64(n))
	s.Metrics.Subscriptions.Set(float64(n))
}

// -----------------------------------------------------------------------------

// subscribe registers the pair and sends the symbol's package. An unknown
// symbol gets an error carrying the id and never a package.
func (s *Server) subscribe(client *Client, symbolID string) {
	if _, err := s.router.Subscribe(client.id, symbolID, client.deliver); err != nil {
		var unknown *helpers.UnknownSymbolError
		if errors.As(err, &unknown) {
			client.deliver(protocol.ErrorMessage{Message: unknown.Message, Symbol: unknown.SymbolID})
		} else {
			client.deliver(protocol.ErrorMessage{Message: err.Error(), Symbol: symbolID})
		}
		s.ErrorHandler.Handle(err, "subscribe")
		return
	}
	s.syncSubscriptionGauge()
	s.startPipeline(symbolID)

	if pkg, ok := s.Assembler.Book.Get(symbolID); ok {
		s.sendPackage(client, pkg)
		return
	}

	// Assembly may hit the network; the result comes back as a notice.
	go func() {
		pkg, err := s.Assembler.Package(s.ctx, symbolID)
		s.notify(packageReady{client: client, symbol: symbolID, pkg: pkg, err: err})
		if err == nil {
			s.mirrorPackage(pkg)
		}
	}()
}

// sendPackage sends a seeded package followed by the symbol's latest tick, or
// waitingForData until ticks seed it.
func (s *Server) sendPackage(client *Client, pkg models.MDailyRangePackage) {
	if !pkg.Seeded {
		s.router.DeliverTo(client.id, pkg.SymbolID, protocol.StatusMessage{Value: protocol.StatusWaitingForData, Symbol: pkg.SymbolID})
		return
	}
	s.seeded[pkg.SymbolID] = true
	s.router.DeliverTo(client.id, pkg.SymbolID, s.packageMessage(pkg))
	if tick, ok := s.lastTick[pkg.SymbolID]; ok {
		s.router.DeliverTo(client.id, pkg.SymbolID, tick)
	}
}

func (s *Server) packageMessage(pkg models.MDailyRangePackage) protocol.PackageMessage {
	sym, _ := s.Session.GetSymbol(pkg.SymbolID)
	return protocol.NewPackageMessage(pkg, sym)
}

// -----------------------------------------------------------------------------

// deliverTick fans a tick out to the symbol's subscribers. A tick that arrived
// before the symbol had a package is held back; it reaches clients right
// after their package.
func (s *Server) deliverTick(upd tickUpdate) {
	symbolID := upd.tick.SymbolID
	msg := protocol.NewTickMessage(upd.tick)
	s.lastTick[symbolID] = msg
	if !upd.hasPackage {
		return
	}
	if upd.pkg.Seeded && !s.seeded[symbolID] {
		// First tick seeded a package built without history.
		s.seeded[symbolID] = true
		s.router.DeliverPackage(symbolID, s.packageMessage(upd.pkg))
	}
	s.router.DeliverTick(symbolID, msg)
}

// -----------------------------------------------------------------------------

func (s *Server) handleNotice(n notice) {
	switch v := n.(type) {
	case packageReady:
		if _, ok := s.clients[v.client]; !ok {
			return
		}
		if v.err != nil {
			s.ErrorHandler.Handle(v.err, "assemble "+v.symbol)
			s.router.RouteError(v.client.id, protocol.ErrorMessage{Message: v.err.Error(), Symbol: v.symbol})
			return
		}
		// Ticks folded since assembly finished are already in the book.
		if cur, ok := s.Assembler.Book.Get(v.symbol); ok {
			v.pkg = cur
		}
		s.sendPackage(v.client, v.pkg)

	case symbolReset:
		if v.err != nil {
			s.ErrorHandler.Handle(v.err, "reset "+v.symbol)
			return
		}
		s.seeded[v.symbol] = v.pkg.Seeded
		if v.pkg.Seeded {
			s.router.DeliverPackage(v.symbol, s.packageMessage(v.pkg))
		} else {
			s.router.Deliver(v.symbol, protocol.StatusMessage{Value: protocol.StatusWaitingForData, Symbol: v.symbol})
		}

	case sessionStatus:
		s.onSessionStatus(v.status)

	case pipelineEnded:
		if s.pipelines[v.symbol] == v.gen {
			delete(s.pipelines, v.symbol)
		}

	case query:
		v.fn()
		close(v.done)
	}
}

// -----------------------------------------------------------------------------

func (s *Server) onSessionStatus(st session.Status) {
	switch st {
	case session.StatusConnected:
		// Error count covers the current connection only.
		s.ErrorHandler.ResetErrorCount()
		for _, symbolID := range s.router.Symbols() {
			s.startPipeline(symbolID)
		}
	case session.StatusDisconnected:
		// Streams end with the session; pipelines restart on reconnect.
		s.pipelines = make(map[string]uint64)
		if err := s.Session.LastError(); err != nil {
			s.ErrorHandler.Handle(err, "session")
			s.router.BroadcastError(err.Error())
		}
		fallthrough
	default:
		for client := range s.clients {
			client.deliver(protocol.StatusMessage{Value: statusValue(st)})
		}
	}
}

// -----------------------------------------------------------------------------

// notify posts a notice unless the hub has stopped.
func (s *Server) notify(n notice) {
	select {
	case s.notices <- n:
	case <-s.ctx.Done():
	}
}

// inHub runs fn on the hub goroutine and waits for it.
func (s *Server) inHub(ctx context.Context, fn func()) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case s.notices <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return helpers.ErrSessionClosed
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.started.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not running"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn, s.Config.Server.ClientQueueSize)

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
