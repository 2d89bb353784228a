package layout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFunc func(ctx context.Context, g *Graph) (*Graph, error)

func (f engineFunc) Layout(ctx context.Context, g *Graph) (*Graph, error) { return f(ctx, g) }

func failingFactory(t *testing.T) EngineFactory {
	return func() Engine {
		t.Fatal("engine must not be invoked")
		return nil
	}
}

func sampleSnapshot() ([]models.GraphNode, []models.GraphEdge) {
	size := models.Size{Height: 90, Width: 150}
	nodes := []models.GraphNode{
		{ID: "topo", Kind: models.KindTopology, Label: "topo", Size: size},
		{ID: "srl1", Kind: models.KindDeployment, Label: "srl1", Size: size},
		{ID: "svc/topo-srl1-vx", Kind: models.KindService, SubKind: models.ServiceKindFabric, Label: "srl1-fabric", Size: size},
		{ID: "svc/topo-srl1", Kind: models.KindService, SubKind: models.ServiceKindExpose, Label: "srl1-expose", Size: size},
		{ID: "srl1-e1-1", Kind: models.KindInterface, Label: "e1-1", OwningNode: "srl1", Size: models.Size{Height: 50, Width: 150}},
	}
	edges := []models.GraphEdge{
		{ID: "topo / srl1", Source: "topo", Target: "srl1"},
		{ID: "srl1 / svc/topo-srl1-vx", Source: "srl1", Target: "svc/topo-srl1-vx"},
		{ID: "srl1 / svc/topo-srl1", Source: "srl1", Target: "svc/topo-srl1"},
		{ID: "svc/topo-srl1-vx / srl1-e1-1", Source: "svc/topo-srl1-vx", Target: "srl1-e1-1"},
	}
	return nodes, edges
}

func TestPartitionFor(t *testing.T) {
	tests := []struct {
		kind    models.NodeKind
		subKind models.ServiceKind
		want    int
	}{
		{models.KindTopology, "", 10},
		{models.KindDeployment, "", 20},
		{models.KindService, models.ServiceKindFabric, 30},
		{models.KindService, "", 30},
		{models.KindService, models.ServiceKindExpose, 40},
		{models.KindInterface, "", 50},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.kind, tt.subKind), func(t *testing.T) {
			assert.Equal(t, tt.want, PartitionFor(tt.kind, tt.subKind))
		})
	}
}

func TestBuildInput(t *testing.T) {
	nodes, edges := sampleSnapshot()

	g := BuildInput(nodes, edges, models.DirectionVertical)
	assert.Equal(t, "DOWN", g.LayoutOptions["elk.direction"])
	assert.Equal(t, "layered", g.LayoutOptions["elk.algorithm"])
	assert.Equal(t, "NETWORK_SIMPLEX", g.LayoutOptions["elk.layered.nodePlacement.strategy"])
	assert.Equal(t, true, g.LayoutOptions["elk.partitioning.activate"])
	assert.Equal(t, true, g.LayoutOptions["elk.separateConnectedComponents"])
	assert.Equal(t, 100, g.LayoutOptions["elk.spacing.componentComponent"])
	assert.Equal(t, 100, g.LayoutOptions["elk.spacing.nodeNode"])
	assert.Equal(t, 100, g.LayoutOptions["elk.layered.spacing.nodeNodeBetweenLayers"])
	assert.Equal(t, 100, g.LayoutOptions["elk.layered.spacing.edgeNodeBetweenLayers"])

	require.Len(t, g.Children, len(nodes))
	assert.Equal(t, 150.0, g.Children[0].Width)
	assert.Equal(t, 90.0, g.Children[0].Height)
	assert.Equal(t, 40, g.Children[3].LayoutOptions[OptPartition])
	assert.Equal(t, []Label{{Text: "srl1-e1-1"}}, g.Children[4].Labels)

	require.Len(t, g.Edges, len(edges))
	assert.Equal(t, []string{"srl1"}, g.Edges[1].Sources)
	assert.Equal(t, []string{"svc/topo-srl1-vx"}, g.Edges[1].Targets)

	assert.Equal(t, "RIGHT", BuildInput(nodes, edges, models.DirectionHorizontal).LayoutOptions["elk.direction"])
}

func TestAdapter_Empty(t *testing.T) {
	out, err := NewAdapter(failingFactory(t)).Layout(context.Background(), nil, nil, models.DirectionVertical)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAdapter_SingleNodeAtPaddingOrigin(t *testing.T) {
	nodes := []models.GraphNode{{ID: "topo", Kind: models.KindTopology, Size: models.Size{Height: 90, Width: 150}}}
	out, err := NewAdapter(failingFactory(t)).Layout(context.Background(), nodes, nil, models.DirectionHorizontal)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.Position{X: 12, Y: 12}, out[0].Position)
	assert.Zero(t, nodes[0].Position, "input must not be mutated")
}

func TestAdapter_LayoutMapsPositions(t *testing.T) {
	nodes, edges := sampleSnapshot()
	out, err := NewAdapter(nil).Layout(context.Background(), nodes, edges, models.DirectionVertical)
	require.NoError(t, err)
	require.Len(t, out, len(nodes))

	pos := make(map[string]models.GraphNode, len(out))
	for i, n := range out {
		assert.Equal(t, nodes[i].ID, n.ID, "input order kept")
		assert.Equal(t, nodes[i].Kind, n.Kind)
		assert.Equal(t, nodes[i].Size, n.Size)
		pos[n.ID] = n
	}
	assert.Less(t, pos["topo"].Position.Y, pos["srl1"].Position.Y)
	assert.Less(t, pos["srl1"].Position.Y, pos["svc/topo-srl1-vx"].Position.Y)
	assert.Less(t, pos["svc/topo-srl1-vx"].Position.Y, pos["svc/topo-srl1"].Position.Y)
	assert.Less(t, pos["svc/topo-srl1"].Position.Y, pos["srl1-e1-1"].Position.Y)
}

func TestAdapter_PartitionDeterminism(t *testing.T) {
	nodes, edges := sampleSnapshot()
	a := NewAdapter(nil)
	first, err := a.Layout(context.Background(), nodes, edges, models.DirectionHorizontal)
	require.NoError(t, err)
	second, err := a.Layout(context.Background(), nodes, edges, models.DirectionHorizontal)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAdapter_EngineCalledPerLayout(t *testing.T) {
	nodes, edges := sampleSnapshot()
	created := 0
	a := NewAdapter(func() Engine {
		created++
		return NewLayeredEngine()
	})
	for i := 0; i < 3; i++ {
		_, err := a.Layout(context.Background(), nodes, edges, models.DirectionVertical)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, created)
}

func TestAdapter_RejectsUnknownEndpoint(t *testing.T) {
	nodes, edges := sampleSnapshot()
	edges = append(edges, models.GraphEdge{ID: "srl1 / ghost", Source: "srl1", Target: "ghost"})
	_, err := NewAdapter(nil).Layout(context.Background(), nodes, edges, models.DirectionVertical)
	assert.ErrorIs(t, err, ErrLayoutRejected)
}

func TestAdapter_PropagatesEngineError(t *testing.T) {
	nodes, edges := sampleSnapshot()
	boom := errors.New("engine crashed")
	a := NewAdapter(func() Engine {
		return engineFunc(func(context.Context, *Graph) (*Graph, error) { return nil, boom })
	})
	_, err := a.Layout(context.Background(), nodes, edges, models.DirectionVertical)
	assert.ErrorIs(t, err, boom)
}

func TestAdapter_EngineDroppingNode(t *testing.T) {
	nodes, edges := sampleSnapshot()
	a := NewAdapter(func() Engine {
		return engineFunc(func(_ context.Context, g *Graph) (*Graph, error) {
			out := *g
			out.Children = g.Children[1:]
			return &out, nil
		})
	})
	_, err := a.Layout(context.Background(), nodes, edges, models.DirectionVertical)
	assert.ErrorIs(t, err, ErrLayoutRejected)
}
