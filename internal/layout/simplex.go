package layout

import (
	"context"
	"math"
)

// simplexEdge is a constraint rank(head) - rank(tail) >= minlen with cost weight*(rank(head)-rank(tail)).
type simplexEdge struct {
	tail, head int
	minlen     float64
	weight     float64
}

// networkSimplex assigns ranks to n vertices minimizing the weighted edge lengths
// (Gansner et al., "A Technique for Drawing Directed Graphs", 1993). The constraint graph
// must be acyclic and connected. Ranks are normalized to start at 0.
type networkSimplex struct {
	n     int
	edges []simplexEdge
	adj   [][]int // vertex -> incident edge indices

	rank    []float64
	inTree  []bool // per edge
	treeAdj [][]int
	cut     []float64

	// rooted tree numbering
	parentEdge []int
	lim, low   []int
	postorder  []int

	maxIterations int
}

const simplexEpsilon = 1e-9

func newNetworkSimplex(n int, edges []simplexEdge) *networkSimplex {
	ns := &networkSimplex{
		n:     n,
		edges: edges,
		adj:   make([][]int, n),
		rank:  make([]float64, n),
	}
	for i, e := range edges {
		ns.adj[e.tail] = append(ns.adj[e.tail], i)
		ns.adj[e.head] = append(ns.adj[e.head], i)
	}
	ns.maxIterations = 4*n + 100
	return ns
}

func (ns *networkSimplex) slack(i int) float64 {
	e := ns.edges[i]
	return ns.rank[e.head] - ns.rank[e.tail] - e.minlen
}

// solve runs the simplex and returns the ranks.
func (ns *networkSimplex) solve(ctx context.Context) ([]float64, error) {
	if ns.n == 0 {
		return ns.rank, nil
	}
	ns.initRank()
	if err := ns.feasibleTree(ctx); err != nil {
		return nil, err
	}
	ns.numberTree()
	ns.computeCutValues()

	start := 0
	for iter := 0; iter < ns.maxIterations; iter++ {
		if iter%32 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		leave := ns.leaveEdge(&start)
		if leave < 0 {
			break
		}
		enter := ns.enterEdge(leave)
		if enter < 0 {
			break
		}
		ns.exchange(leave, enter)
		ns.numberTree()
		ns.computeCutValues()
	}
	ns.normalize()
	return ns.rank, nil
}

// initRank is a longest-path ranking over the constraint DAG.
func (ns *networkSimplex) initRank() {
	indeg := make([]int, ns.n)
	for _, e := range ns.edges {
		indeg[e.head]++
	}
	queue := make([]int, 0, ns.n)
	for v := 0; v < ns.n; v++ {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, i := range ns.adj[v] {
			e := ns.edges[i]
			if e.tail != v {
				continue
			}
			if r := ns.rank[v] + e.minlen; r > ns.rank[e.head] {
				ns.rank[e.head] = r
			}
			indeg[e.head]--
			if indeg[e.head] == 0 {
				queue = append(queue, e.head)
			}
		}
	}
}

// feasibleTree grows a spanning tree of tight edges, shifting the partial tree toward the
// nearest non-tree vertex until it spans the graph.
func (ns *networkSimplex) feasibleTree(ctx context.Context) error {
	ns.inTree = make([]bool, len(ns.edges))
	vertexInTree := make([]bool, ns.n)
	vertexInTree[0] = true
	members := []int{0}
	members = ns.growTightTree(vertexInTree, members, 0)

	for len(members) < ns.n {
		if err := ctx.Err(); err != nil {
			return err
		}
		best, bestSlack := -1, math.Inf(1)
		for _, v := range members {
			for _, i := range ns.adj[v] {
				e := ns.edges[i]
				if vertexInTree[e.tail] == vertexInTree[e.head] {
					continue
				}
				if s := ns.slack(i); s < bestSlack {
					best, bestSlack = i, s
				}
			}
		}
		if best < 0 {
			// disconnected constraint graph: attach the next free vertex at its current rank
			for v := 0; v < ns.n; v++ {
				if !vertexInTree[v] {
					vertexInTree[v] = true
					members = ns.growTightTree(vertexInTree, append(members, v), len(members))
					break
				}
			}
			continue
		}
		delta := bestSlack
		if vertexInTree[ns.edges[best].head] {
			delta = -delta
		}
		for _, v := range members {
			ns.rank[v] += delta
		}
		// every edge leaving the tree with minimal slack is tight now
		members = ns.growTightTree(vertexInTree, members, 0)
	}

	ns.rebuildTreeAdj()
	return nil
}

// growTightTree extends the tree along tight edges from members[from:] and returns the members
// with every newly reached vertex appended.
func (ns *networkSimplex) growTightTree(vertexInTree []bool, members []int, from int) []int {
	for k := from; k < len(members); k++ {
		v := members[k]
		for _, i := range ns.adj[v] {
			if ns.inTree[i] {
				continue
			}
			e := ns.edges[i]
			other := e.head
			if other == v {
				other = e.tail
			}
			if vertexInTree[other] || math.Abs(ns.slack(i)) > simplexEpsilon {
				continue
			}
			ns.inTree[i] = true
			vertexInTree[other] = true
			members = append(members, other)
		}
	}
	return members
}

func (ns *networkSimplex) rebuildTreeAdj() {
	if ns.treeAdj == nil {
		ns.treeAdj = make([][]int, ns.n)
	}
	for v := range ns.treeAdj {
		ns.treeAdj[v] = ns.treeAdj[v][:0]
	}
	for i, in := range ns.inTree {
		if in {
			e := ns.edges[i]
			ns.treeAdj[e.tail] = append(ns.treeAdj[e.tail], i)
			ns.treeAdj[e.head] = append(ns.treeAdj[e.head], i)
		}
	}
}

// numberTree roots the tree at vertex 0 and assigns postorder lim/low numbers so subtree
// membership is a range test.
func (ns *networkSimplex) numberTree() {
	if ns.parentEdge == nil {
		ns.parentEdge = make([]int, ns.n)
		ns.lim = make([]int, ns.n)
		ns.low = make([]int, ns.n)
		ns.postorder = make([]int, 0, ns.n)
	}
	ns.postorder = ns.postorder[:0]
	for i := range ns.parentEdge {
		ns.parentEdge[i] = -2
	}

	type frame struct {
		v, next int
	}
	counter := 1
	for root := 0; root < ns.n; root++ {
		if ns.parentEdge[root] != -2 {
			continue
		}
		ns.parentEdge[root] = -1
		ns.low[root] = counter
		stack := []frame{{v: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(ns.treeAdj[top.v]) {
				i := ns.treeAdj[top.v][top.next]
				top.next++
				e := ns.edges[i]
				child := e.head
				if child == top.v {
					child = e.tail
				}
				if ns.parentEdge[child] != -2 {
					continue
				}
				ns.parentEdge[child] = i
				ns.low[child] = counter
				stack = append(stack, frame{v: child})
				continue
			}
			ns.lim[top.v] = counter
			counter++
			ns.postorder = append(ns.postorder, top.v)
			stack = stack[:len(stack)-1]
		}
	}
}

// inSubtree reports whether v lies in the subtree rooted at c.
func (ns *networkSimplex) inSubtree(v, c int) bool {
	return ns.low[c] <= ns.lim[v] && ns.lim[v] <= ns.lim[c]
}

// childOf returns the endpoint of tree edge i farther from the root.
func (ns *networkSimplex) childOf(i int) int {
	e := ns.edges[i]
	if ns.parentEdge[e.tail] == i {
		return e.tail
	}
	return e.head
}

// inTailComponent reports whether v ends up with the tail of tree edge i when i is removed.
func (ns *networkSimplex) inTailComponent(i, v int) bool {
	c := ns.childOf(i)
	sub := ns.inSubtree(v, c)
	if c == ns.edges[i].tail {
		return sub
	}
	return !sub
}

// computeCutValues fills the cut value of every tree edge in one postorder pass: an edge's
// value follows from the edges incident to its child vertex and the values of the child's own
// tree edges, which the postorder has already computed.
func (ns *networkSimplex) computeCutValues() {
	if ns.cut == nil {
		ns.cut = make([]float64, len(ns.edges))
	}
	for _, v := range ns.postorder {
		if pe := ns.parentEdge[v]; pe >= 0 {
			ns.cut[pe] = ns.cutValue(v, pe)
		}
	}
}

// cutValue is the cut value of tree edge pe whose child endpoint is c.
func (ns *networkSimplex) cutValue(c, pe int) float64 {
	childIsTail := ns.edges[pe].tail == c
	cut := ns.edges[pe].weight
	for _, i := range ns.adj[c] {
		if i == pe {
			continue
		}
		e := ns.edges[i]
		out := e.tail == c
		other := e.head
		if !out {
			other = e.tail
		}
		// the edge crosses from the tail side to the head side of pe
		forward := out == childIsTail
		if forward {
			cut += e.weight
		} else {
			cut -= e.weight
		}
		if ns.inTree[i] && ns.parentEdge[other] == i {
			if forward {
				cut -= ns.cut[i]
			} else {
				cut += ns.cut[i]
			}
		}
	}
	return cut
}

// leaveEdge returns a tree edge with negative cut value, scanning cyclically from *start.
func (ns *networkSimplex) leaveEdge(start *int) int {
	m := len(ns.edges)
	for k := 0; k < m; k++ {
		i := (*start + k) % m
		if ns.inTree[i] && ns.cut[i] < -simplexEpsilon {
			*start = (i + 1) % m
			return i
		}
	}
	return -1
}

// enterEdge picks the minimum-slack non-tree edge from the head component to the tail component of leave.
func (ns *networkSimplex) enterEdge(leave int) int {
	best, bestSlack := -1, math.Inf(1)
	for i, e := range ns.edges {
		if ns.inTree[i] {
			continue
		}
		if ns.inTailComponent(leave, e.tail) || !ns.inTailComponent(leave, e.head) {
			continue
		}
		if s := ns.slack(i); s < bestSlack {
			best, bestSlack = i, s
		}
	}
	return best
}

// exchange makes enter tight by shifting the tail component, then swaps it into the tree.
func (ns *networkSimplex) exchange(leave, enter int) {
	delta := ns.slack(enter)
	if delta != 0 {
		for v := 0; v < ns.n; v++ {
			if ns.inTailComponent(leave, v) {
				ns.rank[v] -= delta
			}
		}
	}
	ns.inTree[leave] = false
	ns.inTree[enter] = true
	ns.rebuildTreeAdj()
}

func (ns *networkSimplex) normalize() {
	min := math.Inf(1)
	for _, r := range ns.rank {
		if r < min {
			min = r
		}
	}
	for v := range ns.rank {
		ns.rank[v] -= min
	}
}
