package sankey

import (
	"fmt"
	"strings"
)

// Node alignments understood by d3-sankey.
const (
	AlignLeft    = "left"
	AlignRight   = "right"
	AlignCenter  = "center"
	AlignJustify = "justify"
)

// Link colour modes. Any other non-empty value is used as a literal colour.
const (
	LinkColorSource       = "source"
	LinkColorTarget       = "target"
	LinkColorSourceTarget = "source-target"
)

// DiagramOptions configures the external layout and renderer. They travel
// with the graph instead of living in renderer globals.
type DiagramOptions struct {
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	NodeWidth    int       `json:"node_width"`
	NodePadding  int       `json:"node_padding"`
	NodeAlign    string    `json:"node_align"`
	Extent       [2][2]int `json:"extent"`
	LinkColor    string    `json:"link_color"`
	NumberFormat string    `json:"number_format"`
}

// DefaultDiagramOptions returns the 928x600 justified layout.
func DefaultDiagramOptions() DiagramOptions {
	o := DiagramOptions{
		Width:        928,
		Height:       600,
		NodeWidth:    15,
		NodePadding:  10,
		NodeAlign:    AlignJustify,
		LinkColor:    LinkColorSourceTarget,
		NumberFormat: ",.0f",
	}
	o.Extent = o.defaultExtent()
	return o
}

func (o DiagramOptions) defaultExtent() [2][2]int {
	return [2][2]int{{1, 5}, {o.Width - 1, o.Height - 5}}
}

// Normalize fills an unset extent from the canvas size and lower-cases the
// alignment.
func (o DiagramOptions) Normalize() DiagramOptions {
	o.NodeAlign = strings.ToLower(strings.TrimSpace(o.NodeAlign))
	o.LinkColor = strings.TrimSpace(o.LinkColor)
	if o.Extent == ([2][2]int{}) {
		o.Extent = o.defaultExtent()
	}
	return o
}

// Validate rejects option sets the renderer cannot draw.
func (o DiagramOptions) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("diagram size must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.NodeWidth <= 0 {
		return fmt.Errorf("node width must be positive, got %d", o.NodeWidth)
	}
	if o.NodePadding < 0 {
		return fmt.Errorf("node padding must not be negative, got %d", o.NodePadding)
	}
	switch o.NodeAlign {
	case AlignLeft, AlignRight, AlignCenter, AlignJustify:
	default:
		return fmt.Errorf("unknown node alignment %q", o.NodeAlign)
	}
	if o.LinkColor == "" {
		return fmt.Errorf("link color is required")
	}
	x0, y0, x1, y1 := o.Extent[0][0], o.Extent[0][1], o.Extent[1][0], o.Extent[1][1]
	if x0 >= x1 || y0 >= y1 || x0 < 0 || y0 < 0 || x1 > o.Width || y1 > o.Height {
		return fmt.Errorf("extent %v does not fit a %dx%d canvas", o.Extent, o.Width, o.Height)
	}
	return nil
}

// Diagram is what a renderer needs: the graph and how to draw it.
type Diagram struct {
	Options DiagramOptions `json:"options"`
	Graph   *Graph         `json:"graph"`
}
