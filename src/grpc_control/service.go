package grpc_control

import (
	"context"
	"errors"
	"fmt"

	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/models"
	"range-meter/src/session"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Hub is what the control plane needs from the WebSocket server.
type Hub interface {
	ClientCount() int
	SubscriptionCount() int
	SymbolSubscribers(ctx context.Context) (map[string]int, error)
	ResetSymbol(ctx context.Context, symbolID string) (models.MDailyRangePackage, error)
}

// ControlService implements the ControlServer interface
type ControlService struct {
	Session *session.SessionManager
	Hub     Hub
	Logger  *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(sess *session.SessionManager, hub Hub, log *logger.Logger) *ControlService {
	return &ControlService{
		Session: sess,
		Hub:     hub,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	subs, err := s.Hub.SymbolSubscribers(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "hub unavailable: %v", err)
	}

	perSymbol := make(map[string]interface{}, len(subs))
	for id, n := range subs {
		perSymbol[id] = n
	}

	symbols := 0
	if reg := s.Session.Registry(); reg != nil {
		symbols = reg.Len()
	}

	return structpb.NewStruct(map[string]interface{}{
		"session":       string(s.Session.Status()),
		"connections":   s.Hub.ClientCount(),
		"subscriptions": s.Hub.SubscriptionCount(),
		"symbols":       symbols,
		"subscribers":   perSymbol,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSymbols(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	reg := s.Session.Registry()
	if reg == nil {
		return nil, status.Error(codes.FailedPrecondition, "symbol registry not loaded")
	}

	list := make([]interface{}, 0, reg.Len())
	for _, sym := range reg.All() {
		list = append(list, map[string]interface{}{
			"id":           sym.ID,
			"digits":       sym.DecimalDigits,
			"pip_size":     sym.PipSize,
			"pip_position": sym.PipPosition,
			"class":        sym.Class,
		})
	}
	return structpb.NewStruct(map[string]interface{}{"symbols": list})
}

// -----------------------------------------------------------------------------

// ReopenSession closes and reconnects the upstream session. Registry and
// packages are kept.
func (s *ControlService) ReopenSession(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	s.Logger.Info("gRPC: ReopenSession requested")
	if err := s.Session.Reopen(ctx); err != nil {
		s.Logger.Error("gRPC: Reopen failed: %v", err)
		return nil, status.Errorf(codes.Unavailable, "reopen failed: %v", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"session": string(s.Session.Status()),
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ResetSymbol(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	symbolID := req.GetValue()
	if symbolID == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	pkg, err := s.Hub.ResetSymbol(ctx, symbolID)
	if err != nil {
		if errors.Is(err, helpers.ErrUnknownSymbol) {
			return nil, status.Errorf(codes.NotFound, "unknown symbol %s", symbolID)
		}
		return nil, status.Errorf(codes.Internal, "reset %s: %v", symbolID, err)
	}

	s.Logger.Info("gRPC: ResetSymbol success for %s", symbolID)
	return structpb.NewStruct(map[string]interface{}{
		"symbol":       pkg.SymbolID,
		"open":         pkg.Open,
		"high_so_far":  pkg.HighSoFar,
		"low_so_far":   pkg.LowSoFar,
		"adr":          pkg.ADR,
		"seeded":       pkg.Seeded,
		"trading_day":  pkg.TradingDay.Format("2006-01-02"),
		"lookback":     pkg.LookbackDays,
		"from_history": pkg.FromHistory,
		"message":      fmt.Sprintf("Reset %s", symbolID),
	})
}
