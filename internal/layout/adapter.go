package layout

import (
	"context"
	"fmt"
	"time"

	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Partitions along the flow axis. Lower partitions are laid out first.
const (
	PartitionTopology   = 10
	PartitionDeployment = 20
	PartitionService    = 30
	PartitionExpose     = 40
	PartitionInterface  = 50
)

// Spacing used for every visualization, in pixels.
const defaultSpacing = 100

// PartitionFor returns the layout partition of a node kind.
func PartitionFor(kind models.NodeKind, subKind models.ServiceKind) int {
	switch kind {
	case models.KindTopology:
		return PartitionTopology
	case models.KindDeployment:
		return PartitionDeployment
	case models.KindService:
		if subKind == models.ServiceKindExpose {
			return PartitionExpose
		}
		return PartitionService
	case models.KindInterface:
		return PartitionInterface
	}
	return PartitionInterface
}

// Adapter turns graph snapshots into engine input and maps the engine's coordinates back.
type Adapter struct {
	factory EngineFactory
}

// NewAdapter returns an adapter creating one engine per call from factory. A nil factory
// selects the built-in layered engine.
func NewAdapter(factory EngineFactory) *Adapter {
	if factory == nil {
		factory = NewLayeredEngine
	}
	return &Adapter{factory: factory}
}

// BuildInput returns the engine input for a snapshot.
func BuildInput(nodes []models.GraphNode, edges []models.GraphEdge, direction models.Direction) *Graph {
	dir := DirectionRight
	if direction == models.DirectionVertical {
		dir = DirectionDown
	}
	g := &Graph{
		ID: "root",
		LayoutOptions: map[string]any{
			"elk." + OptAlgorithm:                    AlgorithmLayered,
			"elk." + OptNodePlacementStrategy:        PlacementNetworkSimplex,
			"elk." + OptSpacingEdgeNodeBetweenLayers: defaultSpacing,
			"elk." + OptSpacingNodeNodeBetweenLayers: defaultSpacing,
			"elk." + OptPartitioningActivate:         true,
			"elk." + OptSeparateConnectedComponents:  true,
			"elk." + OptSpacingComponentComponent:    defaultSpacing,
			"elk." + OptSpacingNodeNode:              defaultSpacing,
			"elk." + OptDirection:                    dir,
		},
		Children: make([]Node, 0, len(nodes)),
		Edges:    make([]Edge, 0, len(edges)),
	}
	for _, n := range nodes {
		g.Children = append(g.Children, Node{
			ID:     n.ID,
			Width:  n.Size.Width,
			Height: n.Size.Height,
			LayoutOptions: map[string]any{
				OptPartition: PartitionFor(n.Kind, n.SubKind),
			},
			Labels: []Label{{Text: n.ID}},
		})
	}
	for _, e := range edges {
		g.Edges = append(g.Edges, Edge{
			ID:      e.ID,
			Sources: []string{e.Source},
			Targets: []string{e.Target},
		})
	}
	return g
}

// Layout positions nodes. The returned slice is a copy in input order with Position set.
func (a *Adapter) Layout(ctx context.Context, nodes []models.GraphNode, edges []models.GraphEdge, direction models.Direction) ([]models.GraphNode, error) {
	out := make([]models.GraphNode, len(nodes))
	copy(out, nodes)
	if len(nodes) == 0 {
		return out, nil
	}
	if len(nodes) == 1 && len(edges) == 0 {
		pad := defaultOptions()
		out[0].Position = models.Position{X: pad.paddingLeft, Y: pad.paddingTop}
		return out, nil
	}

	ctx, span := tracing.StartSpan(ctx, "layout.layered",
		attribute.Int("layout.nodes", len(nodes)),
		attribute.Int("layout.edges", len(edges)),
		attribute.String("layout.direction", string(direction)),
	)
	start := time.Now()
	laid, err := a.factory().Layout(ctx, BuildInput(nodes, edges, direction))
	metrics.LayoutDurationSeconds.Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("layout %d nodes: %w", len(nodes), err)
	}

	pos := make(map[string]Node, len(laid.Children))
	for _, c := range laid.Children {
		pos[c.ID] = c
	}
	for i := range out {
		c, ok := pos[out[i].ID]
		if !ok {
			return nil, fmt.Errorf("%w: engine dropped node %q", ErrLayoutRejected, out[i].ID)
		}
		out[i].Position = models.Position{X: c.X, Y: c.Y}
	}
	return out, nil
}
