package topology

import (
	"errors"
	"fmt"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

// ErrUnknownView is returned for view modes other than kubernetes and network.
var ErrUnknownView = errors.New("unknown view mode")

// Transform presents a collected snapshot in the requested view. The input slices are never
// modified; the result is always a fresh copy.
func Transform(nodes []models.GraphNode, edges []models.GraphEdge, view models.ViewMode) ([]models.GraphNode, []models.GraphEdge, error) {
	switch view {
	case models.ViewKubernetes:
		outNodes := make([]models.GraphNode, len(nodes))
		copy(outNodes, nodes)
		outEdges := make([]models.GraphEdge, len(edges))
		copy(outEdges, edges)
		return outNodes, outEdges, nil
	case models.ViewNetwork:
		return networkView(nodes, edges)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

// networkView removes the topology node and every service, wiring deployments straight to
// the interfaces their fabric services carried.
func networkView(nodes []models.GraphNode, edges []models.GraphEdge) ([]models.GraphNode, []models.GraphEdge, error) {
	in, err := snapshotGraph(nodes, edges)
	if err != nil {
		return nil, nil, err
	}

	out := NewGraph()
	for _, n := range in.Nodes {
		if n.Kind == models.KindTopology || n.Kind == models.KindService {
			continue
		}
		out.AddNode(n)
	}
	link := func(source, target string) error {
		if !out.HasNode(source) || !out.HasNode(target) || out.HasEdge(source, target) {
			return nil
		}
		return out.AddEdge(source, target)
	}

	for _, svc := range in.GetNodesByKind(models.KindService) {
		owner, ok := owningDeployment(in, svc)
		if !ok {
			continue
		}
		for _, e := range in.GetOutgoingEdges(svc.ID) {
			if dst, _ := in.GetNode(e.Target); dst.Kind != models.KindInterface {
				continue
			}
			if err := link(owner, e.Target); err != nil {
				return nil, nil, err
			}
		}
	}
	// wires between interfaces, then anything else among the kept nodes
	for _, kind := range []models.NodeKind{models.KindInterface, models.KindDeployment} {
		for _, n := range in.GetNodesByKind(kind) {
			for _, e := range in.GetOutgoingEdges(n.ID) {
				if err := link(e.Source, e.Target); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return out.Nodes, out.Edges, nil
}

// owningDeployment resolves the deployment of a fabric service from its inbound edge.
// Expose services and services without a collected owner have none.
func owningDeployment(g *Graph, svc models.GraphNode) (string, bool) {
	if svc.SubKind == models.ServiceKindExpose {
		return "", false
	}
	for _, e := range g.GetIncomingEdges(svc.ID) {
		if src, ok := g.GetNode(e.Source); ok && src.Kind == models.KindDeployment {
			return src.ID, true
		}
	}
	return "", false
}

// snapshotGraph indexes a snapshot, rejecting edges to unknown nodes.
func snapshotGraph(nodes []models.GraphNode, edges []models.GraphEdge) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		if !g.HasNode(e.Source) || !g.HasNode(e.Target) {
			return nil, fmt.Errorf("%w: %s", ErrDanglingEdge, e.ID)
		}
		if g.HasEdge(e.Source, e.Target) {
			continue
		}
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			return nil, err
		}
	}
	return g, nil
}
