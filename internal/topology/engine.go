package topology

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clabconsole/clabconsole-backend/internal/layout"
	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/tracing"
)

// Pipeline stages, used as the failure metric label.
const (
	StageCollect   = "collect"
	StageTransform = "transform"
	StageLayout    = "layout"
)

// Layouter positions graph nodes.
type Layouter interface {
	Layout(ctx context.Context, nodes []models.GraphNode, edges []models.GraphEdge, direction models.Direction) ([]models.GraphNode, error)
}

// Engine runs the visualization pipeline: collect, transform, layout.
type Engine struct {
	collector *Collector
	layouter  Layouter
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a topology engine reading from source and laying out with layouter.
func NewEngine(source Source, layouter Layouter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		collector: NewCollector(source, logger),
		layouter:  layouter,
		logger:    logger,
		now:       time.Now,
	}
}

// Visualize builds the positioned graph of one topology.
func (e *Engine) Visualize(ctx context.Context, req models.VisualizeRequest) (result *models.VisualizeResult, err error) {
	view, ok := models.ParseViewMode(string(req.View))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, req.View)
	}
	direction, ok := models.ParseDirection(string(req.Direction))
	if !ok {
		return nil, fmt.Errorf("%w: %q", layout.ErrUnknownDirection, req.Direction)
	}

	ctx, span := tracing.StartSpan(ctx, "topology.visualize",
		attribute.String("k8s.namespace", req.Namespace),
		attribute.String("clabernetes.topology", req.Topology),
		attribute.String("visualize.view", string(view)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		if err == nil {
			metrics.VisualizeDurationSeconds.WithLabelValues(string(view)).Observe(time.Since(start).Seconds())
		}
	}()

	graph, err := e.collector.Collect(ctx, req.Namespace, req.Topology)
	if err != nil {
		metrics.VisualizeFailuresTotal.WithLabelValues(StageCollect).Inc()
		return nil, fmt.Errorf("collect %s/%s: %w", req.Namespace, req.Topology, err)
	}

	nodes, edges, err := Transform(graph.Nodes, graph.Edges, view)
	if err != nil {
		metrics.VisualizeFailuresTotal.WithLabelValues(StageTransform).Inc()
		return nil, fmt.Errorf("transform %s/%s: %w", req.Namespace, req.Topology, err)
	}

	positioned, err := e.layouter.Layout(ctx, nodes, edges, direction)
	if err != nil {
		metrics.VisualizeFailuresTotal.WithLabelValues(StageLayout).Inc()
		return nil, fmt.Errorf("layout %s/%s: %w", req.Namespace, req.Topology, err)
	}

	e.logger.Debug("topology visualized",
		"namespace", req.Namespace,
		"topology", req.Topology,
		"view", view,
		"nodes", len(positioned),
		"edges", len(edges),
		"duration", time.Since(start),
	)

	return &models.VisualizeResult{
		Nodes: positioned,
		Edges: edges,
		Meta: models.VisualizeMeta{
			Namespace:   req.Namespace,
			Topology:    req.Topology,
			View:        view,
			Direction:   direction,
			NodeCount:   len(positioned),
			EdgeCount:   len(edges),
			GeneratedAt: e.now().UTC(),
		},
	}, nil
}
