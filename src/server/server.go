package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"range-meter/src/assembler"
	"range-meter/src/helpers"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/protocol"
	"range-meter/src/router"
	"range-meter/src/session"
	"range-meter/src/utils"
	"range-meter/src/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config       *models.MConfig
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
	Session      *session.SessionManager
	Assembler    *assembler.DataPackageAssembler
	Validator    *validation.TickValidator
	Roller       *utils.DayRoller
	Mirror       interfaces.IMirror // optional
	ErrorHandler *helpers.ErrorHandler

	engine   *gin.Engine
	httpSrv  *http.Server
	gatherer prometheus.Gatherer

	// Hub-owned state. Only the hub goroutine touches these.
	router    *router.SubscriptionRouter
	clients   map[*Client]struct{}
	pipelines map[string]uint64 // symbol -> generation of its running pipeline
	seeded    map[string]bool
	lastTick  map[string]protocol.TickMessage
	nextGen   uint64

	// Hub inputs
	register   chan *Client
	unregister chan *Client
	requests   chan clientRequest
	ticks      *tickSlots
	notices    chan notice

	clientCount atomic.Int64
	subCount    atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(
	cfg *models.MConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	sess *session.SessionManager,
	asm *assembler.DataPackageAssembler,
	roller *utils.DayRoller,
) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:       cfg,
		Logger:       log,
		Metrics:      m,
		Session:      sess,
		Assembler:    asm,
		Validator:    validation.NewTickValidator(m),
		Roller:       roller,
		ErrorHandler: helpers.NewErrorHandler(log),
		engine:       gin.New(),
		gatherer:     gatherer,
		router:       router.NewSubscriptionRouter(sess),
		clients:      make(map[*Client]struct{}),
		pipelines:    make(map[string]uint64),
		seeded:       make(map[string]bool),
		lastTick:     make(map[string]protocol.TickMessage),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		requests:     make(chan clientRequest),
		ticks:        newTickSlots(),
		notices:      make(chan notice, 64),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/symbols", s.getSymbols)
	s.engine.GET("/api/config", s.getConfig)

	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the HTTP routes (tests mount it on httptest).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Run starts the hub and its feeders. It returns immediately; Stop ends them.
func (s *Server) Run(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.handleWebsockets()
	}()
	go func() {
		defer s.wg.Done()
		s.watchSession()
	}()

	if s.Roller != nil && s.Config.Upstream.DayRollCheckSeconds > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchDayRoll(time.Duration(s.Config.Upstream.DayRollCheckSeconds) * time.Second)
		}()
	}
}

// -----------------------------------------------------------------------------

// Start runs the hub and serves HTTP until Stop or a listener error.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.Run(ctx)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	symbols := 0
	if reg := s.Session.Registry(); reg != nil {
		symbols = reg.Len()
	}

	body := gin.H{
		"status":        "ok",
		"session":       s.Session.Status(),
		"connections":   s.clientCount.Load(),
		"subscriptions": s.subCount.Load(),
		"symbols":       symbols,
		"errors":        s.ErrorHandler.Count(),
	}
	if err := s.Session.LastError(); err != nil {
		body["last_error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// -----------------------------------------------------------------------------

func (s *Server) getSymbols(c *gin.Context) {
	reg := s.Session.Registry()
	if reg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "symbol registry not loaded"})
		return
	}
	c.JSON(http.StatusOK, reg.All())
}

// -----------------------------------------------------------------------------

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"upstream":              s.Config.Upstream.Type,
		"lookback_days":         s.Config.Upstream.LookbackDays,
		"ask_above_bid_classes": s.Config.Upstream.AskAboveBidClasses,
		"day_roll_check_secs":   s.Config.Upstream.DayRollCheckSeconds,
	})
}
