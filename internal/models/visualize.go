package models

import "time"

// NodeKind is the kind of element a GraphNode represents (contract: "kind").
type NodeKind string

const (
	KindTopology   NodeKind = "topology"
	KindDeployment NodeKind = "deployment"
	KindService    NodeKind = "service"
	KindInterface  NodeKind = "interface"
)

// ServiceKind distinguishes tunnel-carrying services from user-facing exposed services.
// Values come from the clabernetes/topologyServiceType label.
type ServiceKind string

const (
	ServiceKindFabric ServiceKind = "fabric"
	ServiceKindExpose ServiceKind = "expose"
)

// ViewMode selects how the graph is presented.
type ViewMode string

const (
	ViewKubernetes ViewMode = "kubernetes"
	ViewNetwork    ViewMode = "network"
)

// Direction selects the flow axis of the layout.
type Direction string

const (
	DirectionVertical   Direction = "vertical"
	DirectionHorizontal Direction = "horizontal"
)

// Size is the fixed box size of a node; supplied by the collector, never computed.
type Size struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
}

// Position represents node coordinates ({0,0} until layout assigns them).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphNode is one visual element of a visualization snapshot.
type GraphNode struct {
	ID           string      `json:"id"`
	Kind         NodeKind    `json:"kind"`
	SubKind      ServiceKind `json:"subKind,omitempty"`
	Label        string      `json:"label"`
	ResourceName string      `json:"resourceName,omitempty"`
	OwningNode   string      `json:"owningNode,omitempty"`
	// External marks placeholder service nodes for tunnel endpoints owned by another topology.
	External bool     `json:"external,omitempty"`
	Size     Size     `json:"size"`
	Position Position `json:"position"`
}

// GraphEdge is a directed relation between two GraphNode ids.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// VisualizeMeta describes how a VisualizeResult was produced.
type VisualizeMeta struct {
	Namespace   string    `json:"namespace"`
	Topology    string    `json:"topology"`
	View        ViewMode  `json:"view"`
	Direction   Direction `json:"direction"`
	NodeCount   int       `json:"nodeCount"`
	EdgeCount   int       `json:"edgeCount"`
	GeneratedAt time.Time `json:"generatedAt"`
	// Token is the session request token the result answers; 0 when no session was given.
	Token uint64 `json:"token,omitempty"`
}

// VisualizeResult is the positioned graph handed to the rendering layer.
type VisualizeResult struct {
	Nodes []GraphNode   `json:"nodes"`
	Edges []GraphEdge   `json:"edges"`
	Meta  VisualizeMeta `json:"meta"`
}

// ParseViewMode maps a query value to a ViewMode; empty selects the kubernetes view.
func ParseViewMode(s string) (ViewMode, bool) {
	switch ViewMode(s) {
	case "", ViewKubernetes:
		return ViewKubernetes, true
	case ViewNetwork:
		return ViewNetwork, true
	}
	return "", false
}

// ParseDirection maps a query value to a Direction; empty selects horizontal, which is
// what the console opens with. "right" and "down" are accepted as aliases.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "", string(DirectionHorizontal), "right":
		return DirectionHorizontal, true
	case string(DirectionVertical), "down":
		return DirectionVertical, true
	}
	return "", false
}

// VisualizeRequest selects the topology and presentation of one visualization.
type VisualizeRequest struct {
	Namespace string
	Topology  string
	View      ViewMode
	Direction Direction
}
