package render

import (
	"fmt"
	"strings"
)

// Align is the horizontal anchor of a text run.
type Align string

const (
	AlignLeft  Align = "left"
	AlignRight Align = "right"
)

// Canvas receives primitive draw calls in logical units. Render calls Setup
// once at the start of every frame, before any other call. Setup is the only
// call that receives the device pixel ratio, which stays fixed for the
// renderer's lifetime.
type Canvas interface {
	Setup(width, height, dpr float64)
	SetStroke(color string, lineWidth float64)
	SetFill(color string)
	Line(x1, y1, x2, y2 float64)
	FillRect(x, y, w, h float64)
	Text(x, y float64, text string, align Align)
}

// -----------------------------------------------------------------------------
// RecordingCanvas
// -----------------------------------------------------------------------------

// Op is one recorded draw call.
type Op struct {
	Kind      string // setup, line, rect, text
	X1, Y1    float64
	X2, Y2    float64
	Text      string
	Align     Align
	Color     string
	LineWidth float64
}

// RecordingCanvas keeps every call for snapshot tests.
type RecordingCanvas struct {
	Ops       []Op
	Setups    int
	DPR       float64
	stroke    string
	lineWidth float64
	fill      string
}

func (c *RecordingCanvas) Setup(width, height, dpr float64) {
	c.Ops = c.Ops[:0]
	c.Setups++
	c.DPR = dpr
	c.Ops = append(c.Ops, Op{Kind: "setup", X2: width, Y2: height})
}

func (c *RecordingCanvas) SetStroke(color string, lineWidth float64) {
	c.stroke, c.lineWidth = color, lineWidth
}

func (c *RecordingCanvas) SetFill(color string) {
	c.fill = color
}

func (c *RecordingCanvas) Line(x1, y1, x2, y2 float64) {
	c.Ops = append(c.Ops, Op{Kind: "line", X1: x1, Y1: y1, X2: x2, Y2: y2, Color: c.stroke, LineWidth: c.lineWidth})
}

func (c *RecordingCanvas) FillRect(x, y, w, h float64) {
	c.Ops = append(c.Ops, Op{Kind: "rect", X1: x, Y1: y, X2: x + w, Y2: y + h, Color: c.fill})
}

func (c *RecordingCanvas) Text(x, y float64, text string, align Align) {
	c.Ops = append(c.Ops, Op{Kind: "text", X1: x, Y1: y, Text: text, Align: align, Color: c.fill})
}

// Find returns the recorded ops of one kind whose text or color matches tag.
func (c *RecordingCanvas) Find(kind, tag string) []Op {
	var out []Op
	for _, op := range c.Ops {
		if op.Kind == kind && (tag == "" || op.Text == tag || op.Color == tag) {
			out = append(out, op)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// SVGCanvas
// -----------------------------------------------------------------------------

// SVGCanvas renders into an SVG document sized in device pixels with a
// logical viewBox.
type SVGCanvas struct {
	b         strings.Builder
	stroke    string
	lineWidth float64
	fill      string
}

func (c *SVGCanvas) Setup(width, height, dpr float64) {
	c.b.Reset()
	fmt.Fprintf(&c.b,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s" shape-rendering="crispEdges">`,
		num(width*dpr), num(height*dpr), num(width), num(height))
	c.b.WriteByte('\n')
}

func (c *SVGCanvas) SetStroke(color string, lineWidth float64) {
	c.stroke, c.lineWidth = color, lineWidth
}

func (c *SVGCanvas) SetFill(color string) {
	c.fill = color
}

func (c *SVGCanvas) Line(x1, y1, x2, y2 float64) {
	fmt.Fprintf(&c.b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"/>`+"\n",
		num(x1), num(y1), num(x2), num(y2), c.stroke, num(c.lineWidth))
}

func (c *SVGCanvas) FillRect(x, y, w, h float64) {
	fmt.Fprintf(&c.b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`+"\n",
		num(x), num(y), num(w), num(h), c.fill)
}

func (c *SVGCanvas) Text(x, y float64, text string, align Align) {
	anchor := "start"
	if align == AlignRight {
		anchor = "end"
	}
	fmt.Fprintf(&c.b, `<text x="%s" y="%s" fill="%s" font-family="monospace" font-size="10" text-anchor="%s" dominant-baseline="middle">%s</text>`+"\n",
		num(x), num(y), c.fill, anchor, escape(text))
}

// String returns the finished document.
func (c *SVGCanvas) String() string {
	return c.b.String() + "</svg>\n"
}

func num(v float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
