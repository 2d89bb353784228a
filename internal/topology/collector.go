package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

// Fixed box sizes per node kind.
var (
	ResourceNodeSize  = models.Size{Height: 90, Width: 150}
	InterfaceNodeSize = models.Size{Height: 50, Width: 150}
)

// Source is the cluster access surface the collector reads from.
type Source interface {
	ListDeploymentsByOwner(ctx context.Context, namespace, topologyName string) ([]appsv1.Deployment, error)
	ListServicesByOwner(ctx context.Context, namespace, topologyName string) ([]corev1.Service, error)
	GetConnectivity(ctx context.Context, namespace, topologyName string) (*models.Connectivity, error)
}

// Collector turns the objects owned by one Topology into a graph snapshot.
type Collector struct {
	source Source
	logger *slog.Logger
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: source, logger: logger}
}

// Collect fetches deployments, services and the connectivity of a topology concurrently
// and builds the kubernetes-view graph. Any fetch failure aborts the whole collection.
func (c *Collector) Collect(ctx context.Context, namespace, topologyName string) (*Graph, error) {
	var (
		deployments  []appsv1.Deployment
		services     []corev1.Service
		connectivity *models.Connectivity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.source.ListDeploymentsByOwner(gctx, namespace, topologyName)
		if err != nil {
			return fmt.Errorf("list deployments: %w", err)
		}
		deployments = items
		return nil
	})
	g.Go(func() error {
		items, err := c.source.ListServicesByOwner(gctx, namespace, topologyName)
		if err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		services = items
		return nil
	})
	g.Go(func() error {
		conn, err := c.source.GetConnectivity(gctx, namespace, topologyName)
		if err != nil {
			return fmt.Errorf("get connectivity: %w", err)
		}
		connectivity = conn
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.build(topologyName, deployments, services, connectivity)
}

func (c *Collector) build(topologyName string, deployments []appsv1.Deployment, services []corev1.Service, connectivity *models.Connectivity) (*Graph, error) {
	graph := NewGraph()
	graph.AddNode(models.GraphNode{
		ID:           topologyName,
		Kind:         models.KindTopology,
		Label:        topologyName,
		ResourceName: topologyName,
		Size:         ResourceNodeSize,
	})

	sort.Slice(deployments, func(i, j int) bool { return deployments[i].Name < deployments[j].Name })
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })

	deploymentIndex := make(map[string]struct{}, len(deployments))
	for i := range deployments {
		d := &deployments[i]
		id := labelValue(d.Labels, models.LabelName)
		if !graph.AddNode(models.GraphNode{
			ID:           id,
			Kind:         models.KindDeployment,
			Label:        labelValue(d.Labels, models.LabelTopologyNode),
			ResourceName: d.Name,
			Size:         ResourceNodeSize,
		}) {
			c.logger.Warn("skipping deployment with duplicate node id", "deployment", d.Name, "id", id)
			continue
		}
		deploymentIndex[id] = struct{}{}
		if err := graph.AddEdge(topologyName, id); err != nil {
			return nil, err
		}
	}

	serviceIndex := make(map[string]struct{}, len(services))
	for i := range services {
		s := &services[i]
		id := ServiceNodeID(s.Name)
		topologyNode := labelValue(s.Labels, models.LabelTopologyNode)
		serviceType := labelValue(s.Labels, models.LabelTopologyServiceType)
		if !graph.AddNode(models.GraphNode{
			ID:           id,
			Kind:         models.KindService,
			SubKind:      models.ServiceKind(serviceType),
			Label:        topologyNode + "-" + serviceType,
			ResourceName: s.Name,
			Size:         ResourceNodeSize,
		}) {
			continue
		}
		serviceIndex[id] = struct{}{}

		owner := labelValue(s.Labels, models.LabelName)
		if _, ok := deploymentIndex[owner]; !ok {
			c.logger.Warn("service owner deployment not found, skipping edge", "service", s.Name, "deployment", owner)
			continue
		}
		if err := graph.AddEdge(owner, id); err != nil {
			return nil, err
		}
	}

	if connectivity != nil {
		if err := appendTunnels(graph, connectivity, serviceIndex); err != nil {
			return nil, err
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return graph, nil
}

// ServiceNodeID is the node id of a service object.
func ServiceNodeID(serviceName string) string {
	return "svc/" + serviceName
}

// labelValue returns the label value or "" when the label (or the map) is absent.
func labelValue(labels map[string]string, key string) string {
	if labels == nil {
		return ""
	}
	return labels[key]
}
