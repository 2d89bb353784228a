package topology

import (
	"errors"
	"fmt"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

var (
	// ErrEdgeCollision is returned when an edge id is added twice to one snapshot.
	ErrEdgeCollision = errors.New("edge id collision")
	// ErrDanglingEdge is returned when an edge references a node that is not in the snapshot.
	ErrDanglingEdge = errors.New("edge references unknown node")
)

// EdgeID composes the edge id for source and target ("<source> / <target>").
func EdgeID(source, target string) string {
	return source + " / " + target
}

// Graph is one visualization snapshot under construction. Insertion order is preserved
// so output is stable for identical input.
type Graph struct {
	Nodes []models.GraphNode
	Edges []models.GraphEdge

	nodeIndex map[string]int // id -> index into Nodes
	edgeIndex map[string]int // id -> index into Edges
	outgoing  map[string][]int
	incoming  map[string][]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     []models.GraphNode{},
		Edges:     []models.GraphEdge{},
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
		outgoing:  make(map[string][]int),
		incoming:  make(map[string][]int),
	}
}

// AddNode adds a node. Returns false when a node with the same id already exists
// (the existing node is kept).
func (g *Graph) AddNode(node models.GraphNode) bool {
	if _, exists := g.nodeIndex[node.ID]; exists {
		return false
	}
	g.Nodes = append(g.Nodes, node)
	g.nodeIndex[node.ID] = len(g.Nodes) - 1
	return true
}

// AddEdge adds an edge between source and target.
func (g *Graph) AddEdge(source, target string) error {
	id := EdgeID(source, target)
	if _, exists := g.edgeIndex[id]; exists {
		return fmt.Errorf("%w: %s", ErrEdgeCollision, id)
	}
	g.Edges = append(g.Edges, models.GraphEdge{ID: id, Source: source, Target: target})
	i := len(g.Edges) - 1
	g.edgeIndex[id] = i
	g.outgoing[source] = append(g.outgoing[source], i)
	g.incoming[target] = append(g.incoming[target], i)
	return nil
}

// GetNode retrieves a node by id.
func (g *Graph) GetNode(id string) (models.GraphNode, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return models.GraphNode{}, false
	}
	return g.Nodes[i], true
}

// HasNode reports whether a node id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// HasEdge reports whether an edge between source and target is present.
func (g *Graph) HasEdge(source, target string) bool {
	_, ok := g.edgeIndex[EdgeID(source, target)]
	return ok
}

// Validate checks referential integrity: every edge endpoint must be a node id.
func (g *Graph) Validate() error {
	return ValidateSnapshot(g.Nodes, g.Edges)
}

// GetNodesByKind returns all nodes of a given kind.
func (g *Graph) GetNodesByKind(kind models.NodeKind) []models.GraphNode {
	var result []models.GraphNode
	for _, node := range g.Nodes {
		if node.Kind == kind {
			result = append(result, node)
		}
	}
	return result
}

// GetOutgoingEdges returns all edges originating from a node, in insertion order.
func (g *Graph) GetOutgoingEdges(nodeID string) []models.GraphEdge {
	return g.edgesAt(g.outgoing[nodeID])
}

// GetIncomingEdges returns all edges targeting a node, in insertion order.
func (g *Graph) GetIncomingEdges(nodeID string) []models.GraphEdge {
	return g.edgesAt(g.incoming[nodeID])
}

func (g *Graph) edgesAt(indices []int) []models.GraphEdge {
	var result []models.GraphEdge
	for _, i := range indices {
		result = append(result, g.Edges[i])
	}
	return result
}

// ValidateSnapshot checks that edge ids are unique and every endpoint is a node id.
func ValidateSnapshot(nodes []models.GraphNode, edges []models.GraphEdge) error {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrEdgeCollision, e.ID)
		}
		seen[e.ID] = struct{}{}
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("%w: source %q of edge %q", ErrDanglingEdge, e.Source, e.ID)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("%w: target %q of edge %q", ErrDanglingEdge, e.Target, e.ID)
		}
	}
	return nil
}
