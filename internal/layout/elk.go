package layout

import (
	"context"
	"errors"
)

var (
	// ErrLayoutRejected is returned when the engine refuses its input graph.
	ErrLayoutRejected = errors.New("layout rejected")
	// ErrUnknownDirection is returned for a direction the engine cannot lay out.
	ErrUnknownDirection = errors.New("unknown layout direction")
)

// Graph is the ELK JSON shaped root graph handed to an Engine.
type Graph struct {
	ID            string         `json:"id"`
	LayoutOptions map[string]any `json:"layoutOptions,omitempty"`
	Children      []Node         `json:"children"`
	Edges         []Edge         `json:"edges"`
	Width         float64        `json:"width,omitempty"`
	Height        float64        `json:"height,omitempty"`
}

// Node is one ELK child box. X and Y are the top-left corner once laid out.
type Node struct {
	ID            string         `json:"id"`
	Width         float64        `json:"width"`
	Height        float64        `json:"height"`
	X             float64        `json:"x"`
	Y             float64        `json:"y"`
	LayoutOptions map[string]any `json:"layoutOptions,omitempty"`
	Labels        []Label        `json:"labels,omitempty"`
}

// Label is an ELK label; only its text is used.
type Label struct {
	Text string `json:"text"`
}

// Edge is an ELK extended edge. The layered engine only accepts simple edges
// (one source, one target).
type Edge struct {
	ID       string        `json:"id"`
	Sources  []string      `json:"sources"`
	Targets  []string      `json:"targets"`
	Sections []EdgeSection `json:"sections,omitempty"`
}

// EdgeSection is the routed polyline of an edge.
type EdgeSection struct {
	StartPoint Point   `json:"startPoint"`
	EndPoint   Point   `json:"endPoint"`
	BendPoints []Point `json:"bendPoints,omitempty"`
}

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Engine lays out a graph, returning a positioned copy.
type Engine interface {
	Layout(ctx context.Context, graph *Graph) (*Graph, error)
}

// EngineFactory creates a fresh Engine for one layout call.
type EngineFactory func() Engine
