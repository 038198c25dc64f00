package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/network"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
	tickBuffer       = 1024
)

// FeedSource speaks the upstream feed protocol: one WebSocket for ticks plus a
// REST API for the symbol list and daily history.
type FeedSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	dialer  *websocket.Dialer
	conn    *websocket.Conn
	writeMu sync.Mutex

	watched map[string]struct{}
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewFeedSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger, m *metrics.Metrics) *FeedSource {
	return &FeedSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  log,
		Metrics: m,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		watched: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

func (s *FeedSource) Name() string {
	return "feed"
}

// -----------------------------------------------------------------------------
// Wire shapes
// -----------------------------------------------------------------------------

type wireTick struct {
	Symbol string   `json:"symbol"`
	Bid    *float64 `json:"bid"`
	Ask    *float64 `json:"ask"`
	TS     int64    `json:"ts"` // unix milliseconds
}

type wireControl struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

type wireBar struct {
	Day   string  `json:"day"` // YYYY-MM-DD
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// -----------------------------------------------------------------------------

// Connect dials the stream and re-issues watches for symbols watched before a
// previous Close.
func (s *FeedSource) Connect(ctx context.Context) (<-chan models.MRawTick, error) {
	header := http.Header{}
	if s.Config.Upstream.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.Config.Upstream.APIKey)
	}
	if s.Config.Network.UserAgent != "" {
		header.Set("User-Agent", s.Config.Network.UserAgent)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.Config.Upstream.StreamURL, header)
	if err != nil {
		if resp != nil {
			return nil, helpers.NewUpstreamUnavailable(fmt.Sprintf("feed handshake refused (%d)", resp.StatusCode), err)
		}
		return nil, helpers.NewUpstreamUnavailable("feed dial failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	pending := make([]string, 0, len(s.watched))
	for id := range s.watched {
		pending = append(pending, id)
	}
	s.mu.Unlock()

	for _, id := range pending {
		if err := s.send(wireControl{Action: "subscribe", Symbol: id}); err != nil {
			s.Logger.Warning("Failed to re-watch %s: %v", id, err)
		}
	}

	out := make(chan models.MRawTick, tickBuffer)
	go s.readLoop(runCtx, conn, out)

	s.Logger.Info("Connected to feed %s", s.Config.Upstream.StreamURL)
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *FeedSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.MRawTick) {
	defer close(out)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.Logger.Warning("Feed read failed: %v", err)
			}
			return
		}

		var wt wireTick
		if err := json.Unmarshal(data, &wt); err != nil || wt.Symbol == "" || wt.Bid == nil || wt.Ask == nil {
			s.Logger.Debug("Dropping malformed feed message: %s", data)
			if s.Metrics != nil {
				s.Metrics.MalformedMessages.WithLabelValues("upstream").Inc()
			}
			continue
		}

		tick := models.MRawTick{
			SymbolID:  wt.Symbol,
			Bid:       *wt.Bid,
			Ask:       *wt.Ask,
			Timestamp: time.UnixMilli(wt.TS).UTC(),
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *FeedSource) send(msg wireControl) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// -----------------------------------------------------------------------------

func (s *FeedSource) Watch(symbolID string) error {
	s.mu.Lock()
	_, already := s.watched[symbolID]
	s.watched[symbolID] = struct{}{}
	s.mu.Unlock()

	if already {
		return nil
	}
	return s.send(wireControl{Action: "subscribe", Symbol: symbolID})
}

// -----------------------------------------------------------------------------

func (s *FeedSource) Unwatch(symbolID string) error {
	s.mu.Lock()
	_, ok := s.watched[symbolID]
	delete(s.watched, symbolID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.send(wireControl{Action: "unsubscribe", Symbol: symbolID})
}

// -----------------------------------------------------------------------------

func (s *FeedSource) FetchSymbols(ctx context.Context) ([]models.MSymbol, error) {
	body, err := s.Network.Get(ctx, s.Config.Upstream.RestURL+"/symbols", nil)
	if err != nil {
		return nil, helpers.NewUpstreamUnavailable("symbol list request failed", err)
	}

	var symbols []models.MSymbol
	if err := json.Unmarshal(body, &symbols); err != nil {
		return nil, helpers.NewMalformedMessage("symbol list", err)
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

// FetchDailyBars maps a 404 (no history for this instrument) to HistoryUnavailable.
func (s *FeedSource) FetchDailyBars(ctx context.Context, symbolID string, days int) ([]models.MDailyBar, error) {
	endpoint := s.Config.Upstream.RestURL + "/history/" + url.PathEscape(symbolID)
	body, err := s.Network.Get(ctx, endpoint, map[string]string{"days": strconv.Itoa(days)})
	if err != nil {
		var se *network.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusNoContent) {
			return nil, helpers.NewHistoryUnavailable(symbolID, err)
		}
		return nil, fmt.Errorf("history request for %s: %w", symbolID, err)
	}

	var raw []wireBar
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, helpers.NewMalformedMessage("history for "+symbolID, err)
	}
	if len(raw) == 0 {
		return nil, helpers.NewHistoryUnavailable(symbolID, nil)
	}

	bars := make([]models.MDailyBar, 0, len(raw))
	for _, b := range raw {
		day, err := time.Parse("2006-01-02", b.Day)
		if err != nil {
			s.Logger.Debug("Skipping bar with bad day %q for %s", b.Day, symbolID)
			continue
		}
		bars = append(bars, models.MDailyBar{
			SymbolID: symbolID,
			Day:      day,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

func (s *FeedSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return conn.Close()
}
