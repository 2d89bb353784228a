package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

func TestNewGraph(t *testing.T) {
	graph := NewGraph()

	assert.NotNil(t, graph)
	assert.Empty(t, graph.Nodes)
	assert.Empty(t, graph.Edges)
	assert.NoError(t, graph.Validate())
}

func TestAddNodeDuplicate(t *testing.T) {
	graph := NewGraph()

	assert.True(t, graph.AddNode(models.GraphNode{ID: "node1", Kind: models.KindDeployment, Label: "first"}))
	assert.False(t, graph.AddNode(models.GraphNode{ID: "node1", Kind: models.KindDeployment, Label: "second"}))

	require.Len(t, graph.Nodes, 1)
	node, ok := graph.GetNode("node1")
	require.True(t, ok)
	assert.Equal(t, "first", node.Label)

	_, ok = graph.GetNode("missing")
	assert.False(t, ok)
}

func TestAddEdgeCollision(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(models.GraphNode{ID: "a"})
	graph.AddNode(models.GraphNode{ID: "b"})

	require.NoError(t, graph.AddEdge("a", "b"))
	err := graph.AddEdge("a", "b")
	assert.ErrorIs(t, err, ErrEdgeCollision)
	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, "a / b", graph.Edges[0].ID)

	// the reverse direction is a different edge
	require.NoError(t, graph.AddEdge("b", "a"))
	assert.True(t, graph.HasEdge("b", "a"))
}

func TestValidateDanglingEdge(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(models.GraphNode{ID: "a"})
	require.NoError(t, graph.AddEdge("a", "ghost"))

	err := graph.Validate()
	assert.ErrorIs(t, err, ErrDanglingEdge)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateSnapshotDuplicateEdge(t *testing.T) {
	nodes := []models.GraphNode{{ID: "a"}, {ID: "b"}}
	edges := []models.GraphEdge{
		{ID: "a / b", Source: "a", Target: "b"},
		{ID: "a / b", Source: "a", Target: "b"},
	}
	assert.ErrorIs(t, ValidateSnapshot(nodes, edges), ErrEdgeCollision)
}

func TestGraphQueries(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(models.GraphNode{ID: "topo", Kind: models.KindTopology})
	graph.AddNode(models.GraphNode{ID: "n1", Kind: models.KindDeployment})
	graph.AddNode(models.GraphNode{ID: "n2", Kind: models.KindDeployment})
	require.NoError(t, graph.AddEdge("topo", "n1"))
	require.NoError(t, graph.AddEdge("topo", "n2"))

	assert.Len(t, graph.GetNodesByKind(models.KindDeployment), 2)
	assert.Empty(t, graph.GetNodesByKind(models.KindInterface))
	assert.Len(t, graph.GetOutgoingEdges("topo"), 2)
	assert.Empty(t, graph.GetOutgoingEdges("n1"))
	incoming := graph.GetIncomingEdges("n2")
	require.Len(t, incoming, 1)
	assert.Equal(t, "topo", incoming[0].Source)
}
