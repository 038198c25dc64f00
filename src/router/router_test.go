package router

import (
	"errors"
	"testing"

	"range-meter/src/helpers"
	"range-meter/src/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type symbolSet map[string]bool

func (s symbolSet) Contains(id string) bool { return s[id] }

type inbox struct {
	msgs []protocol.ServerMessage
}

func (b *inbox) deliver(msg protocol.ServerMessage) { b.msgs = append(b.msgs, msg) }

func newRouter() *SubscriptionRouter {
	return NewSubscriptionRouter(symbolSet{"EURUSD": true, "USDJPY": true, "AAPL": true})
}

func TestSubscribe_UnknownSymbol(t *testing.T) {
	r := newRouter()
	var box inbox

	isNew, err := r.Subscribe("c1", "FAKE123", box.deliver)
	require.Error(t, err)
	assert.False(t, isNew)
	assert.True(t, errors.Is(err, helpers.ErrUnknownSymbol))
	assert.Equal(t, "Invalid symbol: FAKE123", err.Error())

	var unknown *helpers.UnknownSymbolError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "FAKE123", unknown.SymbolID)

	assert.Equal(t, 0, r.Count())
	_, ok := r.LastRequested("c1")
	assert.False(t, ok)
}

func TestSubscribe_ReplacesInsteadOfDuplicating(t *testing.T) {
	r := newRouter()
	var first, second inbox

	isNew, err := r.Subscribe("c1", "EURUSD", first.deliver)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = r.Subscribe("c1", "EURUSD", second.deliver)
	require.NoError(t, err)
	assert.False(t, isNew)

	assert.Equal(t, 1, r.Count())
	n := r.DeliverTick("EURUSD", protocol.TickMessage{Symbol: "EURUSD", Bid: 1, Ask: 2})
	assert.Equal(t, 1, n)
	assert.Empty(t, first.msgs)
	assert.Len(t, second.msgs, 1)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	r := newRouter()
	var box inbox
	_, err := r.Subscribe("c1", "EURUSD", box.deliver)
	require.NoError(t, err)

	assert.True(t, r.Unsubscribe("c1", "EURUSD"))
	assert.False(t, r.Unsubscribe("c1", "EURUSD"))
	assert.False(t, r.Unsubscribe("nobody", "AAPL"))

	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Symbols())
	assert.Equal(t, 0, r.Deliver("EURUSD", protocol.StatusMessage{Value: protocol.StatusDisconnected}))
}

func TestDeliver_OnlyToSubscribers(t *testing.T) {
	r := newRouter()
	var a, b inbox
	_, _ = r.Subscribe("a", "EURUSD", a.deliver)
	_, _ = r.Subscribe("b", "EURUSD", b.deliver)
	_, _ = r.Subscribe("b", "AAPL", b.deliver)

	assert.Equal(t, 2, r.DeliverPackage("EURUSD", protocol.PackageMessage{Symbol: "EURUSD"}))
	assert.Equal(t, 1, r.DeliverTick("AAPL", protocol.TickMessage{Symbol: "AAPL"}))
	assert.Equal(t, 0, r.DeliverTick("USDJPY", protocol.TickMessage{Symbol: "USDJPY"}))

	assert.Len(t, a.msgs, 1)
	assert.Len(t, b.msgs, 2)
	assert.Equal(t, []string{"a", "b"}, r.Subscribers("EURUSD"))
	assert.Equal(t, []string{"AAPL", "EURUSD"}, r.Symbols())
	assert.Equal(t, 3, r.Count())
}

func TestRouteError_AttributesToLastRequested(t *testing.T) {
	r := newRouter()
	var box inbox
	_, _ = r.Subscribe("c1", "EURUSD", box.deliver)
	_, _ = r.Subscribe("c1", "AAPL", box.deliver)

	require.True(t, r.RouteError("c1", protocol.ErrorMessage{Message: "stream hiccup"}))
	require.Len(t, box.msgs, 1)
	assert.Equal(t, protocol.ErrorMessage{Message: "stream hiccup", Symbol: "AAPL"}, box.msgs[0])

	// Re-requesting EURUSD makes it the latest request.
	_, _ = r.Subscribe("c1", "EURUSD", box.deliver)
	last, ok := r.LastRequested("c1")
	require.True(t, ok)
	assert.Equal(t, "EURUSD", last)

	// Dropping the latest falls back to the previous active one.
	r.Unsubscribe("c1", "EURUSD")
	last, _ = r.LastRequested("c1")
	assert.Equal(t, "AAPL", last)

	// An explicit symbol is kept.
	require.True(t, r.RouteError("c1", protocol.ErrorMessage{Message: "x", Symbol: "AAPL"}))
	assert.False(t, r.RouteError("c1", protocol.ErrorMessage{Message: "x", Symbol: "USDJPY"}))
	assert.False(t, r.RouteError("ghost", protocol.ErrorMessage{Message: "x"}))
}

func TestBroadcastError(t *testing.T) {
	r := newRouter()
	var a, b inbox
	_, _ = r.Subscribe("a", "EURUSD", a.deliver)
	_, _ = r.Subscribe("b", "USDJPY", b.deliver)

	assert.Equal(t, 2, r.BroadcastError("upstream lost"))
	require.Len(t, a.msgs, 1)
	assert.Equal(t, "EURUSD", a.msgs[0].(protocol.ErrorMessage).Symbol)
	assert.Equal(t, "USDJPY", b.msgs[0].(protocol.ErrorMessage).Symbol)
}

func TestRemoveClient(t *testing.T) {
	r := newRouter()
	var box inbox
	_, _ = r.Subscribe("c1", "USDJPY", box.deliver)
	_, _ = r.Subscribe("c1", "EURUSD", box.deliver)
	_, _ = r.Subscribe("c2", "EURUSD", box.deliver)

	assert.Equal(t, []string{"EURUSD", "USDJPY"}, r.RemoveClient("c1"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"c2"}, r.Subscribers("EURUSD"))
	assert.Empty(t, r.Subscribers("USDJPY"))
	_, ok := r.LastRequested("c1")
	assert.False(t, ok)
	assert.Nil(t, r.RemoveClient("c1"))
}
