package render

import (
	"fmt"
	"math"

	"range-meter/src/rangescale"

	"github.com/shopspring/decimal"
)

// Side of a boundary line relative to the open.
type Side string

const (
	SideUpper Side = "upper"
	SideLower Side = "lower"

	boundaryStep = 25 // percent of half-ADR between boundary lines
)

// BoundaryLine marks a multiple of boundaryStep on one side of the open.
// PercentOfADR is expressed in the same half-ADR unit as the tiers.
type BoundaryLine struct {
	Price        float64
	PercentOfADR int
	Side         Side
}

// Boundaries lists the lines each side's tier discloses, nearest first.
func Boundaries(state rangescale.RangeState) []BoundaryLine {
	if state.HalfRange <= 0 {
		return nil
	}
	var lines []BoundaryLine
	for pct := boundaryStep; pct <= state.UpperTierPct; pct += boundaryStep {
		lines = append(lines, BoundaryLine{
			Price:        state.MidPrice + float64(pct)/100*state.HalfRange,
			PercentOfADR: pct,
			Side:         SideUpper,
		})
	}
	for pct := boundaryStep; pct <= state.LowerTierPct; pct += boundaryStep {
		lines = append(lines, BoundaryLine{
			Price:        state.MidPrice - float64(pct)/100*state.HalfRange,
			PercentOfADR: pct,
			Side:         SideLower,
		})
	}
	return lines
}

// -----------------------------------------------------------------------------
// Projection
// -----------------------------------------------------------------------------

// Projection maps prices to y in logical units, snapped to the device pixel grid.
type Projection struct {
	DomainMin float64
	DomainMax float64
	Height    float64
	DPR       float64
}

// Project maps DomainMax to 0 and DomainMin to Height.
func (p Projection) Project(price float64) float64 {
	span := p.DomainMax - p.DomainMin
	if span <= 0 || p.Height <= 0 {
		return p.snap(p.Height / 2)
	}
	return p.snap((p.DomainMax - price) / span * p.Height)
}

// Unproject is the inverse of Project before snapping.
func (p Projection) Unproject(y float64) float64 {
	if p.Height <= 0 {
		return p.DomainMax
	}
	return p.DomainMax - y/p.Height*(p.DomainMax-p.DomainMin)
}

func (p Projection) snap(y float64) float64 {
	return math.Round(y*p.DPR) / p.DPR
}

// -----------------------------------------------------------------------------
// Renderer
// -----------------------------------------------------------------------------

// Style holds the colors of one meter.
type Style struct {
	Background string
	Axis       string
	Boundary   string
	Open       string
	Extreme    string
	Price      string
	Label      string
}

var DefaultStyle = Style{
	Background: "#101418",
	Axis:       "#5c6670",
	Boundary:   "#2f3a44",
	Open:       "#8a96a3",
	Extreme:    "#d9a441",
	Price:      "#4fc3f7",
	Label:      "#c7d0d9",
}

// RangeRenderer draws one meter. The device pixel ratio is fixed at construction.
type RangeRenderer struct {
	dpr   float64
	Style Style
}

func NewRangeRenderer(dpr float64) *RangeRenderer {
	if !(dpr > 0) || math.IsInf(dpr, 0) {
		dpr = 1
	}
	return &RangeRenderer{dpr: dpr, Style: DefaultStyle}
}

func (r *RangeRenderer) DPR() float64 {
	return r.dpr
}

// Projection returns the price mapping for a canvas of the given height.
func (r *RangeRenderer) Projection(height float64, state rangescale.RangeState) Projection {
	return Projection{DomainMin: state.DomainMin, DomainMax: state.DomainMax, Height: height, DPR: r.dpr}
}

// -----------------------------------------------------------------------------

// Render draws the axis, boundary lines, open, extremes and live price. Every
// y coordinate comes from the same Projection.
func (r *RangeRenderer) Render(ctx Canvas, width, height float64, state rangescale.RangeState) {
	ctx.Setup(width, height, r.dpr)
	hairline := 1 / r.dpr

	ctx.SetFill(r.Style.Background)
	ctx.FillRect(0, 0, width, height)

	p := r.Projection(height, state)
	axisX := math.Round(width*0.5*r.dpr) / r.dpr

	ctx.SetStroke(r.Style.Axis, hairline)
	ctx.Line(axisX, 0, axisX, height)

	ctx.SetStroke(r.Style.Boundary, hairline)
	ctx.SetFill(r.Style.Label)
	for _, b := range Boundaries(state) {
		y := p.Project(b.Price)
		ctx.Line(0, y, width, y)
		ctx.Text(width-2, y, percentLabel(b), AlignRight)
	}

	yOpen := p.Project(state.MidPrice)
	ctx.SetStroke(r.Style.Open, hairline)
	ctx.Line(0, yOpen, width, yOpen)
	ctx.SetFill(r.Style.Label)
	ctx.Text(2, yOpen, FormatPrice(state.MidPrice, state.Digits), AlignLeft)

	ctx.SetStroke(r.Style.Extreme, 2*hairline)
	for _, extreme := range []float64{state.HighSoFar, state.LowSoFar} {
		if !(extreme > 0) {
			continue
		}
		y := p.Project(extreme)
		ctx.Line(axisX-8, y, axisX+8, y)
	}

	if state.CurrentPrice > 0 {
		y := p.Project(state.CurrentPrice)
		ctx.SetFill(r.Style.Price)
		ctx.FillRect(axisX-6, y-hairline, 12, 2*hairline)
		ctx.SetFill(r.Style.Label)
		ctx.Text(axisX+10, y, FormatPrice(state.CurrentPrice, state.Digits), AlignLeft)
	}
}

// -----------------------------------------------------------------------------

// FormatPrice renders price with exactly digits decimals.
func FormatPrice(price float64, digits int) string {
	if digits < 0 {
		digits = 0
	}
	return decimal.NewFromFloat(price).StringFixed(int32(digits))
}

func percentLabel(b BoundaryLine) string {
	if b.Side == SideUpper {
		return fmt.Sprintf("+%d%%", b.PercentOfADR)
	}
	return fmt.Sprintf("-%d%%", b.PercentOfADR)
}
