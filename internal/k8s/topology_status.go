package k8s

import (
	"sort"
	"time"

	"github.com/spf13/cast"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

const unknownValue = "unknown"

// nodeConfig is the part of a node's containerlab config the table shows.
type nodeConfig struct {
	Topology struct {
		Defaults nodeSettings            `json:"defaults"`
		Kinds    map[string]nodeSettings `json:"kinds"`
		Nodes    map[string]nodeSettings `json:"nodes"`
	} `json:"topology"`
}

type nodeSettings struct {
	Kind  string `json:"kind"`
	Image string `json:"image"`
}

// SummarizeTopology flattens a Topology object into its table row and per-node details.
// Status fields are read leniently: a Topology the controller has not reconciled yet has none.
func SummarizeTopology(obj *unstructured.Unstructured) models.TopologySummary {
	summary := models.TopologySummary{
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Nodes:     []models.TopologyNodeStatus{},
	}
	if ts := obj.GetCreationTimestamp(); !ts.IsZero() {
		summary.CreationTimestamp = ts.UTC().Format(time.RFC3339)
	}
	if kind, found, _ := unstructured.NestedString(obj.Object, "status", "kind"); found {
		summary.Kind = kind
	}
	if ready, found, _ := unstructured.NestedBool(obj.Object, "status", "topologyReady"); found {
		summary.Ready = &ready
	}

	configs, _, _ := unstructured.NestedStringMap(obj.Object, "status", "configs")
	readiness, _, _ := unstructured.NestedStringMap(obj.Object, "status", "nodeReadiness")
	exposed, found, _ := unstructured.NestedMap(obj.Object, "status", "exposedPorts")
	if !found {
		exposed, _, _ = unstructured.NestedMap(obj.Object, "status", "nodeExposedPorts")
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		kind, image := nodeKindAndImage(name, configs[name])
		node := models.TopologyNodeStatus{
			Name:      name,
			Readiness: readiness[name],
			Kind:      kind,
			Image:     image,
			TCPPorts:  []int{},
			UDPPorts:  []int{},
		}
		if ports, ok := exposed[name].(map[string]interface{}); ok {
			node.LoadBalancerAddress = cast.ToString(ports["loadBalancerAddress"])
			node.TCPPorts = portList(ports["tcpPorts"])
			node.UDPPorts = portList(ports["udpPorts"])
		}
		summary.Nodes = append(summary.Nodes, node)
	}
	return summary
}

// portList accepts the int64 slices of decoded JSON as well as plain ints.
func portList(v interface{}) []int {
	ports, err := cast.ToIntSliceE(v)
	if err != nil || ports == nil {
		return []int{}
	}
	return ports
}

// nodeKindAndImage resolves a node's kind and image the way containerlab does: the node's own
// values, then its kind's, then the topology defaults. Unresolved values are "unknown".
func nodeKindAndImage(name, config string) (kind, image string) {
	var cfg nodeConfig
	if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
		return unknownValue, unknownValue
	}
	node, ok := cfg.Topology.Nodes[name]
	if !ok && len(cfg.Topology.Nodes) == 1 {
		for _, only := range cfg.Topology.Nodes {
			node = only
		}
	}

	kind = firstNonEmpty(node.Kind, cfg.Topology.Defaults.Kind)
	image = firstNonEmpty(node.Image, cfg.Topology.Kinds[kind].Image, cfg.Topology.Defaults.Image)
	return firstNonEmpty(kind, unknownValue), firstNonEmpty(image, unknownValue)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
