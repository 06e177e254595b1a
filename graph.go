package flow

// arena is a dense, index-based view of a node set.
// Node i of the input slice is vertex i; edges are stored as index lists so
// traversals never recurse and never hash ids on the hot path.
type arena struct {
	nodes []Node
	index map[string]int
	out   [][]int
	indeg []int
	// dangling holds edges whose target is outside the node set, in declared order.
	dangling []edgeRef
}

type edgeRef struct {
	from   int
	target string
}

// newArena indexes nodes. Duplicate ids keep their first position; callers
// that care reject duplicates before building the arena.
func newArena(nodes []Node) *arena {
	a := &arena{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		out:   make([][]int, len(nodes)),
		indeg: make([]int, len(nodes)),
	}
	for i := range nodes {
		if _, dup := a.index[nodes[i].ID]; !dup {
			a.index[nodes[i].ID] = i
		}
	}
	for i := range nodes {
		for _, t := range nodes[i].Targets() {
			j, ok := a.index[t]
			if !ok {
				a.dangling = append(a.dangling, edgeRef{from: i, target: t})
				continue
			}
			a.out[i] = append(a.out[i], j)
			a.indeg[j]++
		}
	}
	return a
}

// roots returns every vertex with no incoming edge, in declared order.
func (a *arena) roots() []int {
	var r []int
	for i, d := range a.indeg {
		if d == 0 {
			r = append(r, i)
		}
	}
	return r
}

// reachable marks every vertex reachable from root with a worklist walk.
func (a *arena) reachable(root int) []bool {
	return a.walk([]int{root}, -1)
}

// walk marks every vertex reachable from seeds without passing through skip.
// A negative skip walks the whole arena.
func (a *arena) walk(seeds []int, skip int) []bool {
	seen := make([]bool, len(a.nodes))
	queue := make([]int, 0, len(seeds))
	for _, v := range seeds {
		if v != skip && !seen[v] {
			seen[v] = true
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range a.out[v] {
			if w != skip && !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

func (a *arena) id(i int) string { return a.nodes[i].ID }
