package models

// Labels clabernetes stamps on the objects it creates for a Topology.
const (
	LabelTopologyOwner       = "clabernetes/topologyOwner"
	LabelName                = "clabernetes/name"
	LabelTopologyNode        = "clabernetes/topologyNode"
	LabelTopologyServiceType = "clabernetes/topologyServiceType"
)

// Clabernetes API coordinates.
const (
	ClabernetesGroup     = "clabernetes.containerlab.dev"
	ClabernetesVersion   = "v1alpha1"
	TopologyResource     = "topologies"
	TopologyKind         = "Topology"
	ConnectivityResource = "connectivities"
	ConnectivityKind     = "Connectivity"
)

// Connectivity mirrors the clabernetes Connectivity custom resource (only the fields the
// console reads). The mapping in PointToPointTunnels is originating node name -> tunnels.
type Connectivity struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Labels    map[string]string `json:"labels,omitempty"`
	Spec      ConnectivitySpec  `json:"spec"`
}

// ConnectivitySpec is the spec of a Connectivity resource.
type ConnectivitySpec struct {
	PointToPointTunnels map[string][]PointToPointTunnel `json:"pointToPointTunnels"`
}

// PointToPointTunnel is one side of a tunnel between two topology node interfaces.
// Each tunnel appears twice in a Connectivity, once from each endpoint.
type PointToPointTunnel struct {
	TunnelID        int    `json:"tunnelID"`
	Destination     string `json:"destination,omitempty"`
	LocalNode       string `json:"localNode"`
	LocalInterface  string `json:"localInterface"`
	RemoteNode      string `json:"remoteNode"`
	RemoteInterface string `json:"remoteInterface"`
}

// TopologySummary is one row of the topologies table plus its expanded node details.
// Ready is nil while the controller has not reported readiness yet.
type TopologySummary struct {
	Name              string               `json:"name"`
	Namespace         string               `json:"namespace"`
	Kind              string               `json:"kind,omitempty"`
	Ready             *bool                `json:"ready"`
	CreationTimestamp string               `json:"creationTimestamp,omitempty"`
	Nodes             []TopologyNodeStatus `json:"nodes"`
}

// TopologyNodeStatus describes one lab node of a Topology as reported in its status.
type TopologyNodeStatus struct {
	Name                string `json:"name"`
	Readiness           string `json:"readiness,omitempty"`
	Kind                string `json:"kind"`
	Image               string `json:"image"`
	LoadBalancerAddress string `json:"loadBalancerAddress,omitempty"`
	TCPPorts            []int  `json:"tcpPorts"`
	UDPPorts            []int  `json:"udpPorts"`
}
