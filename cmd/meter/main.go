package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"range-meter/src/client"
	"range-meter/src/logger"
	"range-meter/src/meter"
	"range-meter/src/protocol"
	"range-meter/src/render"
)

// panel pairs a meter with the SVG canvas it draws on.
type panel struct {
	meter  *meter.Meter
	canvas *render.SVGCanvas
	path   string
}

// -----------------------------------------------------------------------------

func main() {
	url := flag.String("url", "ws://127.0.0.1:8765/ws", "range-meter WebSocket endpoint")
	symbols := flag.String("symbols", "EURUSD", "comma separated symbols to display")
	outDir := flag.String("out", ".", "directory for the SVG snapshots")
	interval := flag.Duration("interval", 250*time.Millisecond, "frame interval")
	width := flag.Float64("width", 160, "meter width in logical pixels")
	height := flag.Float64("height", 480, "meter height in logical pixels")
	dpr := flag.Float64("dpr", 2, "device pixel ratio")
	logLevel := flag.String("log", "INFO", "log level")
	flag.Parse()

	appLogger := logger.NewLogger(*logLevel, "range-meter-view")
	defer appLogger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := client.Dial(ctx, *url, appLogger.Named("Client"))
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	conn.OnStatus = func(st protocol.StatusMessage) {
		appLogger.Warning("Server status: %s", st.Value)
	}
	conn.OnError = func(e protocol.ErrorMessage) {
		appLogger.Error("Server error: %s", e.Message)
	}

	renderer := render.NewRangeRenderer(*dpr)
	var panels []panel

	for _, symbolID := range strings.Split(*symbols, ",") {
		symbolID = strings.TrimSpace(symbolID)
		if symbolID == "" {
			continue
		}
		canvas := &render.SVGCanvas{}
		m := meter.NewMeter(symbolID, renderer, canvas, *width, *height)
		m.OnError = func(e protocol.ErrorMessage) {
			appLogger.Error("%s: %s", symbolID, e.Message)
		}
		m.OnStatus = func(st protocol.StatusMessage) {
			appLogger.Info("%s: %s", symbolID, st.Value)
		}
		if err := conn.Subscribe(symbolID, m); err != nil {
			appLogger.Critical("Subscribe %s failed: %v", symbolID, err)
		}
		panels = append(panels, panel{
			meter:  m,
			canvas: canvas,
			path:   filepath.Join(*outDir, symbolID+".svg"),
		})
	}

	go func() {
		if err := conn.Run(ctx); err != nil {
			appLogger.Error("Connection lost: %v", err)
		}
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			appLogger.Info("Dropped %d malformed messages", conn.Malformed())
			return
		case <-ticker.C:
			for _, p := range panels {
				state, drawn := p.meter.Frame()
				if !drawn {
					continue
				}
				if err := os.WriteFile(p.path, []byte(p.canvas.String()), 0o644); err != nil {
					appLogger.Warning("Writing %s: %v", p.path, err)
					continue
				}
				appLogger.Debug("%s %s [%s, %s] tiers +%d/-%d", state.SymbolID,
					render.FormatPrice(state.CurrentPrice, state.Digits),
					render.FormatPrice(state.DomainMin, state.Digits),
					render.FormatPrice(state.DomainMax, state.Digits),
					state.UpperTierPct, state.LowerTierPct)
			}
		}
	}
}
