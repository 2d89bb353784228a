package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

func collectTwoNodeLab(t *testing.T) *Graph {
	t.Helper()
	graph, err := NewCollector(twoNodeLab(), discardLogger()).Collect(context.Background(), "lab", "topo")
	require.NoError(t, err)
	return graph
}

func TestTransform_KubernetesIsCopy(t *testing.T) {
	graph := collectTwoNodeLab(t)

	nodes, edges, err := Transform(graph.Nodes, graph.Edges, models.ViewKubernetes)
	require.NoError(t, err)
	assert.Equal(t, graph.Nodes, nodes)
	assert.Equal(t, graph.Edges, edges)

	nodes[0].Label = "changed"
	assert.Equal(t, "topo", graph.Nodes[0].Label)
}

func TestTransform_NetworkView(t *testing.T) {
	graph := collectTwoNodeLab(t)

	nodes, edges, err := Transform(graph.Nodes, graph.Edges, models.ViewNetwork)
	require.NoError(t, err)

	assert.Equal(t, []string{"topo-srl1", "topo-srl2", "srl1-e1-1", "srl2-e1-1"}, nodeIDs(nodes))
	assert.Equal(t, []string{
		"topo-srl1 / srl1-e1-1",
		"topo-srl2 / srl2-e1-1",
		"srl1-e1-1 / srl2-e1-1",
	}, edgeIDs(edges))
	require.NoError(t, ValidateSnapshot(nodes, edges))

	for _, n := range nodes {
		assert.NotEqual(t, models.KindTopology, n.Kind)
		assert.NotEqual(t, models.KindService, n.Kind)
	}
}

func TestTransform_NetworkViewDoesNotMutateInput(t *testing.T) {
	graph := collectTwoNodeLab(t)
	nodesBefore := append([]models.GraphNode(nil), graph.Nodes...)
	edgesBefore := append([]models.GraphEdge(nil), graph.Edges...)

	_, _, err := Transform(graph.Nodes, graph.Edges, models.ViewNetwork)
	require.NoError(t, err)
	assert.Equal(t, nodesBefore, graph.Nodes)
	assert.Equal(t, edgesBefore, graph.Edges)
}

func TestTransform_NetworkViewExternalService(t *testing.T) {
	// placeholder fabric services have no owner: their interface keeps only the wire
	graph := NewGraph()
	graph.AddNode(models.GraphNode{ID: "topo", Kind: models.KindTopology})
	graph.AddNode(models.GraphNode{ID: "topo-node1", Kind: models.KindDeployment})
	require.NoError(t, graph.AddEdge("topo", "topo-node1"))
	graph.AddNode(models.GraphNode{ID: "svc/topo-node1-vx", Kind: models.KindService, SubKind: models.ServiceKindFabric})
	require.NoError(t, graph.AddEdge("topo-node1", "svc/topo-node1-vx"))
	require.NoError(t, appendTunnels(graph, connectivity("topo", map[string][]models.PointToPointTunnel{
		"node1": {tunnel(1, "node1", "eth1", "node2", "eth1")},
	}), map[string]struct{}{"svc/topo-node1-vx": {}}))

	nodes, edges, err := Transform(graph.Nodes, graph.Edges, models.ViewNetwork)
	require.NoError(t, err)
	assert.Equal(t, []string{"topo-node1", "node1-eth1", "node2-eth1"}, nodeIDs(nodes))
	assert.Equal(t, []string{"topo-node1 / node1-eth1", "node1-eth1 / node2-eth1"}, edgeIDs(edges))
}

func TestTransform_NetworkViewDropsExposeServices(t *testing.T) {
	graph := NewGraph()
	graph.AddNode(models.GraphNode{ID: "n1", Kind: models.KindDeployment})
	graph.AddNode(models.GraphNode{ID: "svc/n1", Kind: models.KindService, SubKind: models.ServiceKindExpose})
	graph.AddNode(models.GraphNode{ID: "n1-eth1", Kind: models.KindInterface})
	require.NoError(t, graph.AddEdge("n1", "svc/n1"))
	require.NoError(t, graph.AddEdge("svc/n1", "n1-eth1"))

	nodes, edges, err := Transform(graph.Nodes, graph.Edges, models.ViewNetwork)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n1-eth1"}, nodeIDs(nodes))
	assert.Empty(t, edges)
}

func TestTransform_NetworkViewEmptyTopology(t *testing.T) {
	nodes, edges, err := Transform(
		[]models.GraphNode{{ID: "topo", Kind: models.KindTopology}}, nil, models.ViewNetwork)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestTransform_DanglingEdge(t *testing.T) {
	_, _, err := Transform(
		[]models.GraphNode{{ID: "a", Kind: models.KindDeployment}},
		[]models.GraphEdge{{ID: "a / b", Source: "a", Target: "b"}},
		models.ViewNetwork)
	assert.ErrorIs(t, err, ErrDanglingEdge)
}

func TestTransform_UnknownView(t *testing.T) {
	_, _, err := Transform(nil, nil, models.ViewMode("physical"))
	assert.ErrorIs(t, err, ErrUnknownView)
}
