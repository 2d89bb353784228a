package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/clabconsole/clabconsole-backend/internal/k8s"
	"github.com/clabconsole/clabconsole-backend/internal/layout"
	"github.com/clabconsole/clabconsole-backend/internal/models"
)

type layouterFunc func(ctx context.Context, nodes []models.GraphNode, edges []models.GraphEdge, direction models.Direction) ([]models.GraphNode, error)

func (f layouterFunc) Layout(ctx context.Context, nodes []models.GraphNode, edges []models.GraphEdge, direction models.Direction) ([]models.GraphNode, error) {
	return f(ctx, nodes, edges, direction)
}

func newTestEngine(source Source) *Engine {
	e := NewEngine(source, layout.NewAdapter(nil), discardLogger())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestVisualize_KubernetesView(t *testing.T) {
	result, err := newTestEngine(twoNodeLab()).Visualize(context.Background(), models.VisualizeRequest{
		Namespace: "lab",
		Topology:  "topo",
		View:      models.ViewKubernetes,
		Direction: models.DirectionVertical,
	})
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 8)
	assert.Len(t, result.Edges, 8)
	assert.Equal(t, models.VisualizeMeta{
		Namespace:   "lab",
		Topology:    "topo",
		View:        models.ViewKubernetes,
		Direction:   models.DirectionVertical,
		NodeCount:   8,
		EdgeCount:   8,
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, result.Meta)
	require.NoError(t, ValidateSnapshot(result.Nodes, result.Edges))

	pos := make(map[string]models.Position)
	for _, n := range result.Nodes {
		pos[n.ID] = n.Position
	}
	// partitions stack top to bottom in the vertical direction
	assert.Less(t, pos["topo"].Y, pos["topo-srl1"].Y)
	assert.Less(t, pos["topo-srl1"].Y, pos["svc/topo-srl1-vx"].Y)
	assert.Less(t, pos["svc/topo-srl1-vx"].Y, pos["svc/topo-srl1"].Y)
	assert.Less(t, pos["svc/topo-srl1"].Y, pos["srl1-e1-1"].Y)
}

func TestVisualize_NetworkViewDefaults(t *testing.T) {
	result, err := newTestEngine(twoNodeLab()).Visualize(context.Background(), models.VisualizeRequest{
		Namespace: "lab",
		Topology:  "topo",
		View:      models.ViewNetwork,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DirectionHorizontal, result.Meta.Direction)
	assert.Equal(t, []string{"topo-srl1", "topo-srl2", "srl1-e1-1", "srl2-e1-1"}, nodeIDs(result.Nodes))
	assert.Len(t, result.Edges, 3)
	for _, n := range result.Nodes {
		if n.Kind == models.KindDeployment {
			assert.InDelta(t, 12.0, n.Position.X, 1e-6, "deployments share the first band")
		}
	}
}

func TestVisualize_EmptyNetworkView(t *testing.T) {
	result, err := newTestEngine(&fakeSource{}).Visualize(context.Background(), models.VisualizeRequest{
		Namespace: "lab",
		Topology:  "topo",
		View:      models.ViewNetwork,
	})
	require.NoError(t, err)
	assert.NotNil(t, result.Nodes)
	assert.Empty(t, result.Nodes)
	assert.Zero(t, result.Meta.NodeCount)
}

func TestVisualize_TopologyOnly(t *testing.T) {
	result, err := newTestEngine(&fakeSource{}).Visualize(context.Background(), models.VisualizeRequest{
		Namespace: "lab",
		Topology:  "topo",
	})
	require.NoError(t, err)
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, models.Position{X: 12, Y: 12}, result.Nodes[0].Position)
}

func TestVisualize_RejectsBadRequest(t *testing.T) {
	engine := newTestEngine(twoNodeLab())

	_, err := engine.Visualize(context.Background(), models.VisualizeRequest{View: "physical"})
	assert.ErrorIs(t, err, ErrUnknownView)

	_, err = engine.Visualize(context.Background(), models.VisualizeRequest{Direction: "diagonal"})
	assert.ErrorIs(t, err, layout.ErrUnknownDirection)
}

func TestVisualize_StageErrors(t *testing.T) {
	denied := errors.New("deployments is forbidden")
	source := twoNodeLab()
	source.deploymentsErr = denied
	_, err := newTestEngine(source).Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"})
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "collect lab/topo")

	rejected := layouterFunc(func(context.Context, []models.GraphNode, []models.GraphEdge, models.Direction) ([]models.GraphNode, error) {
		return nil, layout.ErrLayoutRejected
	})
	engine := NewEngine(twoNodeLab(), rejected, discardLogger())
	_, err = engine.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"})
	assert.ErrorIs(t, err, layout.ErrLayoutRejected)
	assert.Contains(t, err.Error(), "layout lab/topo")
}

func TestVisualize_ThroughClusterClient(t *testing.T) {
	owned := func(name string, labels map[string]string) metav1.ObjectMeta {
		labels[models.LabelTopologyOwner] = "topo"
		return metav1.ObjectMeta{Name: name, Namespace: "lab", Labels: labels}
	}
	clientset := fake.NewSimpleClientset(
		&appsv1.Deployment{ObjectMeta: owned("topo-node1", map[string]string{
			models.LabelName:         "topo-node1",
			models.LabelTopologyNode: "node1",
		})},
		&corev1.Service{ObjectMeta: owned("topo-node1-vx", map[string]string{
			models.LabelName:                "topo-node1",
			models.LabelTopologyNode:        "node1",
			models.LabelTopologyServiceType: "fabric",
		})},
	)
	conn := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "clabernetes.containerlab.dev/v1alpha1",
		"kind":       "Connectivity",
		"metadata": map[string]interface{}{
			"name":      "topo",
			"namespace": "lab",
			"labels":    map[string]interface{}{models.LabelName: "topo"},
		},
		"spec": map[string]interface{}{
			"pointToPointTunnels": map[string]interface{}{
				"node1": []interface{}{map[string]interface{}{
					"tunnelID":        int64(1),
					"localNode":       "node1",
					"localInterface":  "eth1",
					"remoteNode":      "node2",
					"remoteInterface": "eth1",
				}},
			},
		},
	}}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			k8s.TopologyGVR:     "TopologyList",
			k8s.ConnectivityGVR: "ConnectivityList",
		}, conn)

	engine := newTestEngine(k8s.NewClientForTest(clientset, dyn))
	result, err := engine.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"topo",
		"topo-node1",
		"svc/topo-node1-vx",
		"svc/topo-node2-vx",
		"node1-eth1",
		"node2-eth1",
	}, nodeIDs(result.Nodes))
	assert.Equal(t, []string{
		"topo / topo-node1",
		"topo-node1 / svc/topo-node1-vx",
		"svc/topo-node1-vx / node1-eth1",
		"svc/topo-node2-vx / node2-eth1",
		"node1-eth1 / node2-eth1",
	}, edgeIDs(result.Edges))
	require.NoError(t, ValidateSnapshot(result.Nodes, result.Edges))
}
