package layout

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/spf13/cast"
)

// LayeredEngine is a layered (Sugiyama style) layout engine understanding the ELK layered
// options this console uses. It keeps no state between calls.
type LayeredEngine struct{}

// NewLayeredEngine returns a layered engine.
func NewLayeredEngine() Engine {
	return LayeredEngine{}
}

// lnode is a node of the layered graph: a real input node or a dummy on a long edge.
type lnode struct {
	orig    int     // index into the input children, -1 for dummies
	breadth float64 // extent across the layer
	depth   float64 // extent along the flow
	layer   int
	order   int     // position within its layer
	center  float64 // breadth coordinate of the center
}

// chain is the path an input edge takes through the layered graph.
type chain struct {
	edge     int
	nodes    []int // layered node ids from the oriented source to the oriented target
	reversed bool
}

// componentLayout is one connected component laid out in its own (breadth, depth) frame.
type componentLayout struct {
	nodes   []lnode
	chains  []chain
	breadth float64
	depth   float64
	// per real node (input index) -> layered node id
	index map[int]int
	// depth offset of each layer
	layerDepth []float64
	minIndex   int
}

// Layout positions the children of graph and routes its edges.
func (LayeredEngine) Layout(ctx context.Context, graph *Graph) (*Graph, error) {
	if graph == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrLayoutRejected)
	}
	opts, err := parseOptions(graph.LayoutOptions)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int, len(graph.Children))
	for i, child := range graph.Children {
		if child.ID == "" {
			return nil, fmt.Errorf("%w: child %d has no id", ErrLayoutRejected, i)
		}
		if _, dup := ids[child.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrLayoutRejected, child.ID)
		}
		if !validSize(child.Width) || !validSize(child.Height) {
			return nil, fmt.Errorf("%w: node %q has invalid size %vx%v", ErrLayoutRejected, child.ID, child.Width, child.Height)
		}
		ids[child.ID] = i
	}

	partitions := make([]int, len(graph.Children))
	if opts.partitioning {
		for i, child := range graph.Children {
			if v, ok := lookup(child.LayoutOptions, OptPartition); ok {
				p, err := cast.ToIntE(v)
				if err != nil {
					return nil, fmt.Errorf("%w: node %q has invalid partition %v", ErrLayoutRejected, child.ID, v)
				}
				partitions[i] = p
			}
		}
	}

	edges := make([][2]int, len(graph.Edges))
	for i, edge := range graph.Edges {
		if len(edge.Sources) != 1 || len(edge.Targets) != 1 {
			return nil, fmt.Errorf("%w: edge %q is a hyperedge (%d sources, %d targets)",
				ErrLayoutRejected, edge.ID, len(edge.Sources), len(edge.Targets))
		}
		src, ok := ids[edge.Sources[0]]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown source %q", ErrLayoutRejected, edge.ID, edge.Sources[0])
		}
		dst, ok := ids[edge.Targets[0]]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown target %q", ErrLayoutRejected, edge.ID, edge.Targets[0])
		}
		edges[i] = [2]int{src, dst}
	}

	out := &Graph{
		ID:            graph.ID,
		LayoutOptions: graph.LayoutOptions,
		Children:      make([]Node, len(graph.Children)),
		Edges:         make([]Edge, len(graph.Edges)),
	}
	copy(out.Children, graph.Children)
	copy(out.Edges, graph.Edges)
	if len(graph.Children) == 0 {
		out.Width = opts.paddingLeft + opts.paddingRight
		out.Height = opts.paddingTop + opts.paddingBottom
		return out, nil
	}

	var components [][]int
	if opts.separateComponents {
		components = connectedComponents(len(graph.Children), edges)
	} else {
		all := make([]int, len(graph.Children))
		for i := range all {
			all[i] = i
		}
		components = [][]int{all}
	}

	layouts := make([]*componentLayout, 0, len(components))
	for _, members := range components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cl, err := layoutComponent(ctx, graph, members, edges, partitions, opts)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, cl)
	}

	place(out, layouts, opts)
	return out, nil
}

func validSize(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// connectedComponents groups node indices by undirected connectivity, ordered by smallest member.
func connectedComponents(n int, edges [][2]int) [][]int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range edges {
		a, b := find(e[0]), find(e[1])
		if a != b {
			if a < b {
				parent[b] = a
			} else {
				parent[a] = b
			}
		}
	}
	groups := make(map[int][]int)
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}
	out := make([][]int, 0, len(roots))
	for _, r := range roots {
		out = append(out, groups[r])
	}
	return out
}

func layoutComponent(ctx context.Context, graph *Graph, members []int, edges [][2]int, partitions []int, opts options) (*componentLayout, error) {
	cl := &componentLayout{index: make(map[int]int, len(members)), minIndex: members[0]}
	for _, m := range members {
		child := graph.Children[m]
		n := lnode{orig: m}
		if opts.vertical() {
			n.breadth, n.depth = child.Width, child.Height
		} else {
			n.breadth, n.depth = child.Height, child.Width
		}
		cl.index[m] = len(cl.nodes)
		cl.nodes = append(cl.nodes, n)
	}

	// component edges in layered node ids, self loops dropped
	type cedge struct {
		edge     int
		from, to int
	}
	var local []cedge
	for i, e := range edges {
		from, ok := cl.index[e[0]]
		if !ok {
			continue
		}
		to := cl.index[e[1]]
		if from == to {
			continue
		}
		local = append(local, cedge{edge: i, from: from, to: to})
	}

	part := func(v int) int { return partitions[cl.nodes[v].orig] }

	// orient: against partition order, then DFS back edges within a partition
	reversed := make([]bool, len(local))
	adj := make([][]int, len(cl.nodes))
	for i, e := range local {
		switch {
		case opts.partitioning && part(e.from) > part(e.to):
			reversed[i] = true
		case opts.partitioning && part(e.from) < part(e.to):
		default:
			adj[e.from] = append(adj[e.from], i)
		}
	}
	state := make([]int, len(cl.nodes)) // 0 new, 1 on stack, 2 done
	var visit func(v int)
	visit = func(v int) {
		state[v] = 1
		for _, i := range adj[v] {
			w := local[i].to
			switch state[w] {
			case 0:
				visit(w)
			case 1:
				reversed[i] = true
			}
		}
		state[v] = 2
	}
	for v := range cl.nodes {
		if state[v] == 0 {
			visit(v)
		}
	}

	succ := make([][]int, len(cl.nodes))
	pred := make([][]int, len(cl.nodes))
	for i, e := range local {
		from, to := e.from, e.to
		if reversed[i] {
			from, to = to, from
		}
		succ[from] = append(succ[from], to)
		pred[to] = append(pred[to], from)
	}

	assignLayers(cl, succ, pred, part, opts.partitioning)

	// split long edges with dummies
	for i, e := range local {
		from, to := e.from, e.to
		if reversed[i] {
			from, to = to, from
		}
		c := chain{edge: e.edge, reversed: reversed[i], nodes: []int{from}}
		for l := cl.nodes[from].layer + 1; l < cl.nodes[to].layer; l++ {
			cl.nodes = append(cl.nodes, lnode{orig: -1, layer: l})
			c.nodes = append(c.nodes, len(cl.nodes)-1)
		}
		c.nodes = append(c.nodes, to)
		cl.chains = append(cl.chains, c)
	}

	layers := orderLayers(cl)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	if opts.placement == PlacementSimple {
		placeSimple(cl, layers, opts)
	} else {
		err = placeNetworkSimplex(ctx, cl, layers, opts)
	}
	if err != nil {
		return nil, err
	}

	assignDepths(cl, layers, opts)
	return cl, nil
}

// assignLayers is a longest-path layering. With partitioning every partition starts below
// the deepest layer of all lower partitions.
func assignLayers(cl *componentLayout, succ, pred [][]int, part func(int) int, partitioning bool) {
	n := len(cl.nodes)
	indeg := make([]int, n)
	for v := 0; v < n; v++ {
		indeg[v] = len(pred[v])
	}
	topo := make([]int, 0, n)
	queue := make([]int, 0, n)
	for v := 0; v < n; v++ {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		topo = append(topo, v)
		for _, w := range succ[v] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}

	if partitioning {
		// edges never point to a lower partition, so a stable sort keeps topo valid
		sort.SliceStable(topo, func(i, j int) bool { return part(topo[i]) < part(topo[j]) })
	}

	base, deepest := 0, -1
	current := 0
	for i, v := range topo {
		if partitioning && (i == 0 || part(v) != current) {
			current = part(v)
			base = deepest + 1
		}
		layer := base
		for _, u := range pred[v] {
			if l := cl.nodes[u].layer + 1; l > layer {
				layer = l
			}
		}
		cl.nodes[v].layer = layer
		if layer > deepest {
			deepest = layer
		}
	}
}

// orderLayers buckets nodes into layers and reduces crossings with barycenter sweeps,
// keeping the best ordering seen.
func orderLayers(cl *componentLayout) [][]int {
	maxLayer := 0
	for _, n := range cl.nodes {
		if n.layer > maxLayer {
			maxLayer = n.layer
		}
	}
	layers := make([][]int, maxLayer+1)
	for v, n := range cl.nodes {
		layers[n.layer] = append(layers[n.layer], v)
	}

	up := make([][]int, len(cl.nodes))
	down := make([][]int, len(cl.nodes))
	for _, c := range cl.chains {
		for k := 0; k+1 < len(c.nodes); k++ {
			a, b := c.nodes[k], c.nodes[k+1]
			down[a] = append(down[a], b)
			up[b] = append(up[b], a)
		}
	}

	setOrder := func() {
		for _, layer := range layers {
			for i, v := range layer {
				cl.nodes[v].order = i
			}
		}
	}
	setOrder()

	snapshot := func() [][]int {
		cp := make([][]int, len(layers))
		for i := range layers {
			cp[i] = append([]int(nil), layers[i]...)
		}
		return cp
	}

	best := snapshot()
	bestCrossings := countCrossings(cl, layers, down)
	if bestCrossings == 0 || len(layers) < 2 {
		return best
	}

	const maxSweeps = 24
	stale := 0
	for sweep := 0; sweep < maxSweeps && stale < 4; sweep++ {
		if sweep%2 == 0 {
			for l := 1; l < len(layers); l++ {
				sortByBarycenter(cl, layers[l], up)
			}
		} else {
			for l := len(layers) - 2; l >= 0; l-- {
				sortByBarycenter(cl, layers[l], down)
			}
		}
		c := countCrossings(cl, layers, down)
		if c < bestCrossings {
			bestCrossings = c
			best = snapshot()
			stale = 0
		} else {
			stale++
		}
		if bestCrossings == 0 {
			break
		}
	}

	layers = best
	setOrder()
	return layers
}

func sortByBarycenter(cl *componentLayout, layer []int, neighbors [][]int) {
	bary := make(map[int]float64, len(layer))
	for _, v := range layer {
		ns := neighbors[v]
		if len(ns) == 0 {
			bary[v] = float64(cl.nodes[v].order)
			continue
		}
		var sum float64
		for _, w := range ns {
			sum += float64(cl.nodes[w].order)
		}
		bary[v] = sum / float64(len(ns))
	}
	sort.SliceStable(layer, func(i, j int) bool { return bary[layer[i]] < bary[layer[j]] })
	for i, v := range layer {
		cl.nodes[v].order = i
	}
}

// countCrossings counts crossing edge pairs between adjacent layers as inversions of the
// lower endpoints once edges are sorted by their upper endpoints.
func countCrossings(cl *componentLayout, layers [][]int, down [][]int) int {
	total := 0
	var pairs [][2]int
	for l := 0; l+1 < len(layers); l++ {
		pairs = pairs[:0]
		maxLower := 0
		for _, v := range layers[l] {
			for _, w := range down[v] {
				pairs = append(pairs, [2]int{cl.nodes[v].order, cl.nodes[w].order})
				if o := cl.nodes[w].order; o > maxLower {
					maxLower = o
				}
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i][0] != pairs[j][0] {
				return pairs[i][0] < pairs[j][0]
			}
			return pairs[i][1] < pairs[j][1]
		})
		// Fenwick tree over lower orders seen so far
		tree := make([]int, maxLower+2)
		for k, p := range pairs {
			notAbove := 0
			for i := p[1] + 1; i > 0; i -= i & -i {
				notAbove += tree[i]
			}
			total += k - notAbove
			for i := p[1] + 1; i < len(tree); i += i & -i {
				tree[i]++
			}
		}
	}
	return total
}

// separation is the minimum center distance of two neighbours in a layer.
func separation(cl *componentLayout, a, b int, opts options) float64 {
	na, nb := cl.nodes[a], cl.nodes[b]
	gap := opts.nodeNode
	switch {
	case na.orig < 0 && nb.orig < 0:
		gap = opts.edgeEdge
	case na.orig < 0 || nb.orig < 0:
		gap = opts.edgeNode
	}
	return na.breadth/2 + nb.breadth/2 + gap
}

// placeSimple packs each layer from its start and centers layers on the widest one.
func placeSimple(cl *componentLayout, layers [][]int, opts options) {
	widths := make([]float64, len(layers))
	widest := 0.0
	for l, layer := range layers {
		pos := 0.0
		for i, v := range layer {
			if i == 0 {
				pos = cl.nodes[v].breadth / 2
			} else {
				pos += separation(cl, layer[i-1], v, opts)
			}
			cl.nodes[v].center = pos
		}
		if len(layer) > 0 {
			widths[l] = pos + cl.nodes[layer[len(layer)-1]].breadth/2
		}
		if widths[l] > widest {
			widest = widths[l]
		}
	}
	for l, layer := range layers {
		shift := (widest - widths[l]) / 2
		for _, v := range layer {
			cl.nodes[v].center += shift
		}
	}
	cl.breadth = widest
}

// placeNetworkSimplex straightens edges by solving the auxiliary constraint graph: every
// layered edge gets a helper vertex pulling both endpoints together, and neighbours in a
// layer keep their separation. Edges through dummies weigh more so long edges stay straight.
func placeNetworkSimplex(ctx context.Context, cl *componentLayout, layers [][]int, opts options) error {
	n := len(cl.nodes)
	var aux []simplexEdge
	vertices := n
	for _, c := range cl.chains {
		for k := 0; k+1 < len(c.nodes); k++ {
			a, b := c.nodes[k], c.nodes[k+1]
			w := 1.0
			switch {
			case cl.nodes[a].orig < 0 && cl.nodes[b].orig < 0:
				w = 8
			case cl.nodes[a].orig < 0 || cl.nodes[b].orig < 0:
				w = 2
			}
			helper := vertices
			vertices++
			aux = append(aux,
				simplexEdge{tail: helper, head: a, weight: w},
				simplexEdge{tail: helper, head: b, weight: w},
			)
		}
	}
	for _, layer := range layers {
		for i := 1; i < len(layer); i++ {
			aux = append(aux, simplexEdge{
				tail:   layer[i-1],
				head:   layer[i],
				minlen: separation(cl, layer[i-1], layer[i], opts),
			})
		}
	}

	ranks, err := newNetworkSimplex(vertices, aux).solve(ctx)
	if err != nil {
		return err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for v := 0; v < n; v++ {
		half := cl.nodes[v].breadth / 2
		lo = math.Min(lo, ranks[v]-half)
		hi = math.Max(hi, ranks[v]+half)
	}
	for v := 0; v < n; v++ {
		cl.nodes[v].center = ranks[v] - lo
	}
	cl.breadth = hi - lo
	return nil
}

// assignDepths stacks the layers along the flow axis.
func assignDepths(cl *componentLayout, layers [][]int, opts options) {
	cl.layerDepth = make([]float64, len(layers))
	extent := make([]float64, len(layers))
	hasReal := make([]bool, len(layers))
	for l, layer := range layers {
		for _, v := range layer {
			extent[l] = math.Max(extent[l], cl.nodes[v].depth)
			if cl.nodes[v].orig >= 0 {
				hasReal[l] = true
			}
		}
	}
	pos := 0.0
	for l := range layers {
		if l > 0 {
			gap := opts.edgeNodeBetweenLayers
			if hasReal[l-1] && hasReal[l] {
				gap = opts.nodeNodeBetweenLayers
			}
			pos += extent[l-1] + gap
		}
		cl.layerDepth[l] = pos
	}
	if len(layers) > 0 {
		cl.depth = pos + extent[len(layers)-1]
	}
	// center nodes within their layer band
	for v := range cl.nodes {
		n := &cl.nodes[v]
		n.depth = cl.layerDepth[n.layer] + (extent[n.layer]-n.depth)/2 + n.depth/2
	}
}

// place packs the component layouts next to each other across the flow and writes
// coordinates and edge routes to out.
func place(out *Graph, layouts []*componentLayout, opts options) {
	sort.SliceStable(layouts, func(i, j int) bool { return layouts[i].minIndex < layouts[j].minIndex })

	offset := 0.0
	maxDepth := 0.0
	offsets := make([]float64, len(layouts))
	for i, cl := range layouts {
		if i > 0 {
			offset += opts.componentSpacing
		}
		offsets[i] = offset
		offset += cl.breadth
		maxDepth = math.Max(maxDepth, cl.depth)
	}
	totalBreadth := offset

	// center point of a layered node in output coordinates
	point := func(cl *componentLayout, off float64, v int) Point {
		n := cl.nodes[v]
		b := off + n.center
		d := n.depth // center along the flow
		switch opts.direction {
		case DirectionUp:
			d = maxDepth - d
		case DirectionLeft:
			d = maxDepth - d
		}
		if opts.vertical() {
			return Point{X: opts.paddingLeft + b, Y: opts.paddingTop + d}
		}
		return Point{X: opts.paddingLeft + d, Y: opts.paddingTop + b}
	}

	for i, cl := range layouts {
		for v, n := range cl.nodes {
			if n.orig < 0 {
				continue
			}
			c := point(cl, offsets[i], v)
			child := &out.Children[n.orig]
			child.X = c.X - child.Width/2
			child.Y = c.Y - child.Height/2
		}
		for _, ch := range cl.chains {
			pts := make([]Point, len(ch.nodes))
			for k, v := range ch.nodes {
				pts[k] = point(cl, offsets[i], v)
			}
			if ch.reversed {
				for a, b := 0, len(pts)-1; a < b; a, b = a+1, b-1 {
					pts[a], pts[b] = pts[b], pts[a]
				}
			}
			out.Edges[ch.edge].Sections = []EdgeSection{{
				StartPoint: pts[0],
				EndPoint:   pts[len(pts)-1],
				BendPoints: pts[1 : len(pts)-1],
			}}
		}
	}

	if opts.vertical() {
		out.Width = opts.paddingLeft + totalBreadth + opts.paddingRight
		out.Height = opts.paddingTop + maxDepth + opts.paddingBottom
	} else {
		out.Width = opts.paddingLeft + maxDepth + opts.paddingRight
		out.Height = opts.paddingTop + totalBreadth + opts.paddingBottom
	}
}
