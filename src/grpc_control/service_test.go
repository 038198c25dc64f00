package grpc_control

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"range-meter/src/data_source/simulated"
	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/session"
	"range-meter/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeHub struct {
	subscribers map[string]int
	resetErr    error
	resets      []string
}

func (h *fakeHub) ClientCount() int       { return 2 }
func (h *fakeHub) SubscriptionCount() int { return 3 }

func (h *fakeHub) SymbolSubscribers(ctx context.Context) (map[string]int, error) {
	return h.subscribers, nil
}

func (h *fakeHub) ResetSymbol(ctx context.Context, symbolID string) (models.MDailyRangePackage, error) {
	h.resets = append(h.resets, symbolID)
	if h.resetErr != nil {
		return models.MDailyRangePackage{}, h.resetErr
	}
	return models.MDailyRangePackage{
		SymbolID:   symbolID,
		Open:       1.16005,
		HighSoFar:  1.161,
		LowSoFar:   1.1595,
		ADR:        0.02,
		TradingDay: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Seeded:     true,
	}, nil
}

func newSession(t *testing.T) *session.SessionManager {
	t.Helper()
	cfg := &models.MConfig{Upstream: models.MUpstreamConfig{
		LookbackDays: 20,
		Simulated: models.MSimulatedConfig{
			Symbols: []models.MSymbol{
				{ID: "EURUSD", DecimalDigits: 5, PipSize: 0.0001, PipPosition: 4, Class: "fx"},
				{ID: "AAPL", DecimalDigits: 2, PipSize: 0.01, PipPosition: 2, Class: "equity"},
			},
		},
	}}
	log := logger.NewNopLogger()
	up := simulated.NewSimulatedSource(cfg, log)
	sess := session.NewSessionManager(cfg, up, storage.NoopDB{}, log, metrics.NewUnregistered())
	t.Cleanup(func() { sess.Close() })
	return sess
}

func dial(t *testing.T, svc ControlServer) *ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterControlServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewControlClient(conn)
}

// -----------------------------------------------------------------------------

func TestControl_BeforeConnect(t *testing.T) {
	sess := newSession(t)
	client := dial(t, NewControlService(sess, &fakeHub{}, logger.NewNopLogger()))
	ctx := context.Background()

	_, err := client.ListSymbols(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	st, err := client.GetStatus(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "disconnected", st.Fields["session"].GetStringValue())
	assert.Equal(t, 0.0, st.Fields["symbols"].GetNumberValue())
}

func TestControl_StatusSymbolsAndReopen(t *testing.T) {
	sess := newSession(t)
	hub := &fakeHub{subscribers: map[string]int{"EURUSD": 2, "AAPL": 1}}
	client := dial(t, NewControlService(sess, hub, logger.NewNopLogger()))
	ctx := context.Background()

	reopened, err := client.ReopenSession(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "connected", reopened.Fields["session"].GetStringValue())

	st, err := client.GetStatus(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "connected", st.Fields["session"].GetStringValue())
	assert.Equal(t, 2.0, st.Fields["connections"].GetNumberValue())
	assert.Equal(t, 3.0, st.Fields["subscriptions"].GetNumberValue())
	assert.Equal(t, 2.0, st.Fields["symbols"].GetNumberValue())
	subs := st.Fields["subscribers"].GetStructValue().Fields
	assert.Equal(t, 2.0, subs["EURUSD"].GetNumberValue())

	list, err := client.ListSymbols(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	symbols := list.Fields["symbols"].GetListValue().Values
	require.Len(t, symbols, 2)
	first := symbols[0].GetStructValue().Fields
	assert.Equal(t, "AAPL", first["id"].GetStringValue())
	assert.Equal(t, 2.0, first["digits"].GetNumberValue())
}

func TestControl_ResetSymbol(t *testing.T) {
	sess := newSession(t)
	hub := &fakeHub{}
	client := dial(t, NewControlService(sess, hub, logger.NewNopLogger()))
	ctx := context.Background()

	res, err := client.ResetSymbol(ctx, wrapperspb.String("EURUSD"))
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", res.Fields["symbol"].GetStringValue())
	assert.Equal(t, "2025-03-05", res.Fields["trading_day"].GetStringValue())
	assert.True(t, res.Fields["seeded"].GetBoolValue())
	assert.Equal(t, []string{"EURUSD"}, hub.resets)

	_, err = client.ResetSymbol(ctx, wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	hub.resetErr = helpers.NewUnknownSymbol("FAKE123")
	_, err = client.ResetSymbol(ctx, wrapperspb.String("FAKE123"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	hub.resetErr = errors.New("db gone")
	_, err = client.ResetSymbol(ctx, wrapperspb.String("EURUSD"))
	assert.Equal(t, codes.Internal, status.Code(err))
}
