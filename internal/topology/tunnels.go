package topology

import (
	"sort"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

// FabricServiceID is the node id of the vxlan service carrying tunnels for a topology node.
func FabricServiceID(connectivityName, node string) string {
	return ServiceNodeID(connectivityName + "-" + node + "-vx")
}

// InterfaceNodeID is the node id of an interface endpoint.
func InterfaceNodeID(node, iface string) string {
	return node + "-" + iface
}

// appendTunnels adds two interface nodes and three edges per distinct tunnel id.
// Every tunnel is listed from both of its endpoints; only the first occurrence is kept.
// serviceIndex holds the ids of the services collected for this topology; fabric services
// outside of it get a placeholder node so every edge resolves.
func appendTunnels(graph *Graph, connectivity *models.Connectivity, serviceIndex map[string]struct{}) error {
	connName := labelValue(connectivity.Labels, models.LabelName)

	origins := make([]string, 0, len(connectivity.Spec.PointToPointTunnels))
	for node := range connectivity.Spec.PointToPointTunnels {
		origins = append(origins, node)
	}
	sort.Strings(origins)

	seen := make(map[int]struct{})
	for _, origin := range origins {
		for _, tunnel := range connectivity.Spec.PointToPointTunnels[origin] {
			if _, dup := seen[tunnel.TunnelID]; dup {
				continue
			}
			seen[tunnel.TunnelID] = struct{}{}

			localSvc := FabricServiceID(connName, tunnel.LocalNode)
			remoteSvc := FabricServiceID(connName, tunnel.RemoteNode)
			local := InterfaceNodeID(tunnel.LocalNode, tunnel.LocalInterface)
			remote := InterfaceNodeID(tunnel.RemoteNode, tunnel.RemoteInterface)

			for _, svc := range []struct{ id, node string }{{localSvc, tunnel.LocalNode}, {remoteSvc, tunnel.RemoteNode}} {
				if _, ok := serviceIndex[svc.id]; ok || graph.HasNode(svc.id) {
					continue
				}
				graph.AddNode(models.GraphNode{
					ID:       svc.id,
					Kind:     models.KindService,
					SubKind:  models.ServiceKindFabric,
					Label:    svc.node + "-" + string(models.ServiceKindFabric),
					External: true,
					Size:     ResourceNodeSize,
				})
			}

			graph.AddNode(interfaceNode(local, tunnel.LocalNode))
			graph.AddNode(interfaceNode(remote, tunnel.RemoteNode))

			for _, e := range [][2]string{{localSvc, local}, {remoteSvc, remote}, {local, remote}} {
				if graph.HasEdge(e[0], e[1]) {
					continue
				}
				if err := graph.AddEdge(e[0], e[1]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func interfaceNode(id, owningNode string) models.GraphNode {
	return models.GraphNode{
		ID:         id,
		Kind:       models.KindInterface,
		Label:      id,
		OwningNode: owningNode,
		Size:       InterfaceNodeSize,
	}
}
