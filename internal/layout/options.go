package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Layout option keys, in their short form. Lookups also accept the "elk." and
// "org.eclipse.elk." prefixed spellings.
const (
	OptAlgorithm                    = "algorithm"
	OptDirection                    = "direction"
	OptNodePlacementStrategy        = "layered.nodePlacement.strategy"
	OptSpacingEdgeNodeBetweenLayers = "layered.spacing.edgeNodeBetweenLayers"
	OptSpacingNodeNodeBetweenLayers = "layered.spacing.nodeNodeBetweenLayers"
	OptPartitioningActivate         = "partitioning.activate"
	OptPartition                    = "partitioning.partition"
	OptSeparateConnectedComponents  = "separateConnectedComponents"
	OptSpacingComponentComponent    = "spacing.componentComponent"
	OptSpacingNodeNode              = "spacing.nodeNode"
	OptSpacingEdgeNode              = "spacing.edgeNode"
	OptSpacingEdgeEdge              = "spacing.edgeEdge"
	OptPadding                      = "padding"
)

const (
	AlgorithmLayered = "layered"

	PlacementNetworkSimplex = "NETWORK_SIMPLEX"
	PlacementSimple         = "SIMPLE"

	DirectionDown  = "DOWN"
	DirectionRight = "RIGHT"
	DirectionUp    = "UP"
	DirectionLeft  = "LEFT"
)

// options is the resolved configuration of one layered layout run.
type options struct {
	direction                   string
	placement                   string
	edgeNodeBetweenLayers       float64
	nodeNodeBetweenLayers       float64
	partitioning                bool
	separateComponents          bool
	componentSpacing            float64
	nodeNode                    float64
	edgeNode                    float64
	edgeEdge                    float64
	paddingTop, paddingLeft     float64
	paddingBottom, paddingRight float64
}

// ELK's own defaults where the caller gives no value.
func defaultOptions() options {
	return options{
		direction:             DirectionRight,
		placement:             PlacementNetworkSimplex,
		edgeNodeBetweenLayers: 10,
		nodeNodeBetweenLayers: 20,
		separateComponents:    true,
		componentSpacing:      20,
		nodeNode:              20,
		edgeNode:              10,
		edgeEdge:              10,
		paddingTop:            12,
		paddingLeft:           12,
		paddingBottom:         12,
		paddingRight:          12,
	}
}

// lookup finds key in opts under any of its accepted spellings.
func lookup(opts map[string]any, key string) (any, bool) {
	for _, prefix := range []string{"", "elk.", "org.eclipse.elk."} {
		if v, ok := opts[prefix+key]; ok {
			return v, true
		}
	}
	return nil, false
}

func parseOptions(opts map[string]any) (options, error) {
	o := defaultOptions()

	if v, ok := lookup(opts, OptAlgorithm); ok {
		algo := strings.TrimPrefix(cast.ToString(v), "org.eclipse.elk.")
		if algo != AlgorithmLayered {
			return o, fmt.Errorf("%w: unsupported algorithm %q", ErrLayoutRejected, algo)
		}
	}
	if v, ok := lookup(opts, OptDirection); ok {
		dir := strings.ToUpper(cast.ToString(v))
		switch dir {
		case DirectionDown, DirectionRight, DirectionUp, DirectionLeft:
			o.direction = dir
		default:
			return o, fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
		}
	}
	if v, ok := lookup(opts, OptNodePlacementStrategy); ok {
		strategy := strings.ToUpper(cast.ToString(v))
		switch strategy {
		case PlacementNetworkSimplex, PlacementSimple:
			o.placement = strategy
		default:
			return o, fmt.Errorf("%w: unsupported node placement strategy %q", ErrLayoutRejected, strategy)
		}
	}

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{OptSpacingEdgeNodeBetweenLayers, &o.edgeNodeBetweenLayers},
		{OptSpacingNodeNodeBetweenLayers, &o.nodeNodeBetweenLayers},
		{OptSpacingComponentComponent, &o.componentSpacing},
		{OptSpacingNodeNode, &o.nodeNode},
		{OptSpacingEdgeNode, &o.edgeNode},
		{OptSpacingEdgeEdge, &o.edgeEdge},
	}
	for _, f := range floats {
		if v, ok := lookup(opts, f.key); ok {
			if *f.dst, err = spacingValue(f.key, v); err != nil {
				return o, err
			}
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{OptPartitioningActivate, &o.partitioning},
		{OptSeparateConnectedComponents, &o.separateComponents},
	}
	for _, b := range bools {
		if v, ok := lookup(opts, b.key); ok {
			if *b.dst, err = cast.ToBoolE(v); err != nil {
				return o, fmt.Errorf("%w: option %s: %v", ErrLayoutRejected, b.key, err)
			}
		}
	}

	if v, ok := lookup(opts, OptPadding); ok {
		if err := o.parsePadding(v); err != nil {
			return o, err
		}
	}
	return o, nil
}

func spacingValue(key string, v any) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: option %s: invalid spacing %v", ErrLayoutRejected, key, v)
	}
	return f, nil
}

// parsePadding accepts a single number or ELK's "[top=12,left=12,bottom=12,right=12]" form.
func (o *options) parsePadding(v any) error {
	if f, err := cast.ToFloat64E(v); err == nil {
		o.paddingTop, o.paddingLeft, o.paddingBottom, o.paddingRight = f, f, f, f
		return nil
	}
	s := strings.Trim(strings.TrimSpace(cast.ToString(v)), "[]")
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("%w: invalid padding %v", ErrLayoutRejected, v)
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(kv[1]))
		if err != nil {
			return fmt.Errorf("%w: invalid padding %v", ErrLayoutRejected, v)
		}
		switch strings.TrimSpace(kv[0]) {
		case "top":
			o.paddingTop = f
		case "left":
			o.paddingLeft = f
		case "bottom":
			o.paddingBottom = f
		case "right":
			o.paddingRight = f
		default:
			return fmt.Errorf("%w: invalid padding %v", ErrLayoutRejected, v)
		}
	}
	return nil
}

// vertical reports whether layers stack along the y axis.
func (o options) vertical() bool {
	return o.direction == DirectionDown || o.direction == DirectionUp
}
