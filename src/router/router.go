package router

import (
	"sort"

	"range-meter/src/helpers"
	"range-meter/src/protocol"
)

// DeliverFunc hands one message to a client transport. It must not block.
type DeliverFunc func(msg protocol.ServerMessage)

// Subscription binds one client to one symbol.
type Subscription struct {
	ClientID string
	SymbolID string
	Deliver  DeliverFunc
}

// SymbolIndex is the containment check against the full symbol set.
type SymbolIndex interface {
	Contains(id string) bool
}

// -----------------------------------------------------------------------------
// SubscriptionRouter owns the (client, symbol) table. It is not safe for
// concurrent use: the hub goroutine is its only caller.
// -----------------------------------------------------------------------------

type SubscriptionRouter struct {
	symbols  SymbolIndex
	bySymbol map[string]map[string]*Subscription
	byClient map[string]map[string]*Subscription

	// requests keeps each client's subscribe order; the last entry is the
	// attribution target for errors without a symbol.
	requests map[string][]string
}

func NewSubscriptionRouter(symbols SymbolIndex) *SubscriptionRouter {
	return &SubscriptionRouter{
		symbols:  symbols,
		bySymbol: make(map[string]map[string]*Subscription),
		byClient: make(map[string]map[string]*Subscription),
		requests: make(map[string][]string),
	}
}

// -----------------------------------------------------------------------------

// Subscribe registers deliver for (clientID, symbolID), replacing any earlier
// subscription of the same pair. It returns true when the pair is new.
func (r *SubscriptionRouter) Subscribe(clientID, symbolID string, deliver DeliverFunc) (bool, error) {
	if !r.symbols.Contains(symbolID) {
		return false, helpers.NewUnknownSymbol(symbolID)
	}

	sub := &Subscription{ClientID: clientID, SymbolID: symbolID, Deliver: deliver}

	clients := r.bySymbol[symbolID]
	if clients == nil {
		clients = make(map[string]*Subscription)
		r.bySymbol[symbolID] = clients
	}
	_, existed := clients[clientID]
	clients[clientID] = sub

	subs := r.byClient[clientID]
	if subs == nil {
		subs = make(map[string]*Subscription)
		r.byClient[clientID] = subs
	}
	subs[symbolID] = sub

	r.requests[clientID] = append(removeString(r.requests[clientID], symbolID), symbolID)
	return !existed, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the pair. Removing an absent pair is a no-op.
func (r *SubscriptionRouter) Unsubscribe(clientID, symbolID string) bool {
	subs := r.byClient[clientID]
	if _, ok := subs[symbolID]; !ok {
		return false
	}

	delete(subs, symbolID)
	if len(subs) == 0 {
		delete(r.byClient, clientID)
	}

	clients := r.bySymbol[symbolID]
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(r.bySymbol, symbolID)
	}

	r.requests[clientID] = removeString(r.requests[clientID], symbolID)
	if len(r.requests[clientID]) == 0 {
		delete(r.requests, clientID)
	}
	return true
}

// -----------------------------------------------------------------------------

// RemoveClient drops every subscription of a client and returns the symbols it held.
func (r *SubscriptionRouter) RemoveClient(clientID string) []string {
	var symbols []string
	for symbolID := range r.byClient[clientID] {
		symbols = append(symbols, symbolID)
	}
	for _, symbolID := range symbols {
		r.Unsubscribe(clientID, symbolID)
	}
	delete(r.requests, clientID)
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------------------

// Deliver fans msg out to every subscriber of symbolID and returns the count.
func (r *SubscriptionRouter) Deliver(symbolID string, msg protocol.ServerMessage) int {
	clients := r.bySymbol[symbolID]
	for _, sub := range clients {
		sub.Deliver(msg)
	}
	return len(clients)
}

func (r *SubscriptionRouter) DeliverTick(symbolID string, msg protocol.TickMessage) int {
	return r.Deliver(symbolID, msg)
}

func (r *SubscriptionRouter) DeliverPackage(symbolID string, msg protocol.PackageMessage) int {
	return r.Deliver(symbolID, msg)
}

// DeliverTo sends msg over a single subscription.
func (r *SubscriptionRouter) DeliverTo(clientID, symbolID string, msg protocol.ServerMessage) bool {
	sub, ok := r.byClient[clientID][symbolID]
	if !ok {
		return false
	}
	sub.Deliver(msg)
	return true
}

// -----------------------------------------------------------------------------

// RouteError delivers an error to one client. An error without a symbol is
// attributed to the client's most recently requested subscription that is
// still active. It returns false when the client has no subscription to carry it.
func (r *SubscriptionRouter) RouteError(clientID string, msg protocol.ErrorMessage) bool {
	if msg.Symbol == "" {
		last, ok := r.LastRequested(clientID)
		if !ok {
			return false
		}
		msg.Symbol = last
	}
	return r.DeliverTo(clientID, msg.Symbol, msg)
}

// BroadcastError routes a symbol-less error to every client.
func (r *SubscriptionRouter) BroadcastError(message string) int {
	n := 0
	for clientID := range r.byClient {
		if r.RouteError(clientID, protocol.ErrorMessage{Message: message}) {
			n++
		}
	}
	return n
}

// LastRequested returns the symbol of the client's latest active subscribe request.
func (r *SubscriptionRouter) LastRequested(clientID string) (string, bool) {
	reqs := r.requests[clientID]
	if len(reqs) == 0 {
		return "", false
	}
	return reqs[len(reqs)-1], true
}

// -----------------------------------------------------------------------------
// Introspection
// -----------------------------------------------------------------------------

// Subscribers returns the client ids subscribed to symbolID, sorted.
func (r *SubscriptionRouter) Subscribers(symbolID string) []string {
	out := make([]string, 0, len(r.bySymbol[symbolID]))
	for clientID := range r.bySymbol[symbolID] {
		out = append(out, clientID)
	}
	sort.Strings(out)
	return out
}

// Symbols returns every symbol with at least one subscriber, sorted.
func (r *SubscriptionRouter) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for symbolID := range r.bySymbol {
		out = append(out, symbolID)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of active (client, symbol) pairs.
func (r *SubscriptionRouter) Count() int {
	n := 0
	for _, subs := range r.byClient {
		n += len(subs)
	}
	return n
}

// -----------------------------------------------------------------------------

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
