package core

import (
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/signalsfoundry/realm/kb"
	"github.com/signalsfoundry/realm/model"
)

// visitMark is the tri-state colour of a town during one traversal.
type visitMark uint8

const (
	unvisited visitMark = iota
	inProgress
	finished
)

const infiniteCost = math.MaxInt

// scratch is the working memory of a single traversal, indexed by
// kb.Handle.Index(). It is allocated per call and never shared.
type scratch struct {
	mark     []visitMark
	pred     []kb.Handle
	hasPred  []bool
	cost     []int
	estimate []int
}

func newScratch(n int, withCosts bool) *scratch {
	sc := &scratch{
		mark:    make([]visitMark, n),
		pred:    make([]kb.Handle, n),
		hasPred: make([]bool, n),
	}
	if withCosts {
		sc.cost = make([]int, n)
		sc.estimate = make([]int, n)
		for i := range sc.cost {
			sc.cost[i] = infiniteCost
			sc.estimate[i] = infiniteCost
		}
	}
	return sc
}

func (sc *scratch) setPred(h, p kb.Handle) {
	sc.pred[h.Index()] = p
	sc.hasPred[h.Index()] = true
}

// Traversal runs route and cycle searches over a RoadGraph. It holds no
// state between calls.
type Traversal struct {
	store     *kb.KnowledgeBase
	graph     *RoadGraph
	heuristic Heuristic
}

// NewTraversal returns a traversal engine. A nil heuristic means
// StraightLine.
func NewTraversal(store *kb.KnowledgeBase, graph *RoadGraph, h Heuristic) *Traversal {
	if h == nil {
		h = StraightLine
	}
	return &Traversal{store: store, graph: graph, heuristic: h}
}

func (t *Traversal) endpoints(from, to string) (kb.Handle, kb.Handle, error) {
	src, ok := t.store.Lookup(from)
	if !ok {
		return kb.Handle{}, kb.Handle{}, fmt.Errorf("%w: %q", ErrTownNotFound, from)
	}
	dst, ok := t.store.Lookup(to)
	if !ok {
		return kb.Handle{}, kb.Handle{}, fmt.Errorf("%w: %q", ErrTownNotFound, to)
	}
	return src, dst, nil
}

// route walks predecessor links back from dst and returns the IDs in travel
// order.
func (t *Traversal) route(sc *scratch, dst kb.Handle) []string {
	var out []string
	for cur := dst; ; cur = sc.pred[cur.Index()] {
		out = append(out, t.store.ID(cur))
		if !sc.hasPred[cur.Index()] {
			break
		}
	}
	slices.Reverse(out)
	return out
}

// LeastTownsRoute returns a route from `from` to `to` using the fewest
// roads, found breadth-first. The route is empty when `to` is unreachable.
func (t *Traversal) LeastTownsRoute(from, to string) ([]string, error) {
	src, dst, err := t.endpoints(from, to)
	if err != nil {
		return nil, err
	}

	sc := newScratch(t.store.Cap(), false)
	sc.mark[src.Index()] = inProgress
	queue := []kb.Handle{src}

	for len(queue) > 0 && sc.mark[dst.Index()] == unvisited {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range t.graph.neighbors(cur) {
			if sc.mark[n.Index()] == unvisited {
				sc.mark[n.Index()] = inProgress
				sc.setPred(n, cur)
				queue = append(queue, n)
			}
		}
		sc.mark[cur.Index()] = finished
	}

	if sc.mark[dst.Index()] == unvisited {
		return []string{}, nil
	}
	return t.route(sc, dst), nil
}

// CycleRoute searches depth-first from start for a road cycle. The result
// begins at the town where the cycle closes, follows the cycle and repeats
// that town at the end. It is empty when no cycle is reachable from start.
func (t *Traversal) CycleRoute(start string) ([]string, error) {
	src, ok := t.store.Lookup(start)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, start)
	}

	type entry struct {
		town kb.Handle
		// closing entries are pushed under a town's children and finish
		// the town when popped.
		closing bool
	}

	sc := newScratch(t.store.Cap(), false)
	stack := []entry{{town: src}}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur := e.town

		if e.closing {
			sc.mark[cur.Index()] = finished
			continue
		}
		if sc.mark[cur.Index()] != unvisited {
			// Stale entry left by an earlier discovery.
			continue
		}

		sc.mark[cur.Index()] = inProgress
		stack = append(stack, entry{town: cur, closing: true})

		for _, n := range t.graph.neighbors(cur) {
			switch {
			case sc.mark[n.Index()] == unvisited:
				sc.setPred(n, cur)
				stack = append(stack, entry{town: n})
			case sc.hasPred[cur.Index()] && n == sc.pred[cur.Index()]:
				// The road we arrived by.
			case sc.mark[n.Index()] == inProgress:
				if sc.hasPred[n.Index()] && sc.pred[n.Index()] == cur {
					continue
				}
				return t.closeCycle(sc, cur, n), nil
			}
		}
	}
	return []string{}, nil
}

// closeCycle builds closing → ... → from → closing using predecessor links,
// which lead from `from` back through its in-progress ancestors.
func (t *Traversal) closeCycle(sc *scratch, from, closing kb.Handle) []string {
	out := []string{t.store.ID(closing)}
	for cur := from; cur != closing; cur = sc.pred[cur.Index()] {
		out = append(out, t.store.ID(cur))
		if !sc.hasPred[cur.Index()] {
			break
		}
	}
	out = append(out, t.store.ID(closing))
	slices.Reverse(out)
	return out
}

// ShortestRoute returns a route from `from` to `to` minimising total road
// length, where a road is as long as the truncated distance between its
// towns. The search is best-first on cost-so-far plus the heuristic; see
// StraightLine for when the answer is guaranteed optimal. The route is
// empty when `to` is unreachable.
func (t *Traversal) ShortestRoute(from, to string) ([]string, error) {
	src, dst, err := t.endpoints(from, to)
	if err != nil {
		return nil, err
	}

	goal := t.store.Coords(dst)
	sc := newScratch(t.store.Cap(), true)
	sc.cost[src.Index()] = 0
	sc.estimate[src.Index()] = t.heuristic(t.store.Coords(src), goal)
	sc.mark[src.Index()] = inProgress

	open := &openSet{}
	open.push(src, sc.estimate[src.Index()])

	found := false
	for open.Len() > 0 {
		cur := open.pop()
		if sc.mark[cur.Index()] == finished {
			continue
		}
		if cur == dst {
			found = true
			break
		}

		here := t.store.Coords(cur)
		for _, n := range t.graph.neighbors(cur) {
			if sc.mark[n.Index()] == finished {
				continue
			}
			there := t.store.Coords(n)
			d := sc.cost[cur.Index()] + Distance(here, there)
			if d < sc.cost[n.Index()] {
				sc.cost[n.Index()] = d
				sc.estimate[n.Index()] = d + t.heuristic(there, goal)
				sc.setPred(n, cur)
				sc.mark[n.Index()] = inProgress
				open.push(n, sc.estimate[n.Index()])
			}
		}
		sc.mark[cur.Index()] = finished
	}

	if !found {
		return []string{}, nil
	}
	return t.route(sc, dst), nil
}

// RouteLength sums the road lengths along route. It returns
// model.NoDistance if a town is unknown or two consecutive towns are not
// connected by a road.
func (t *Traversal) RouteLength(route []string) model.Distance {
	total := 0
	for i, id := range route {
		h, ok := t.store.Lookup(id)
		if !ok {
			return model.NoDistance
		}
		if i == 0 {
			continue
		}
		prev, _ := t.store.Lookup(route[i-1])
		if !slices.Contains(t.graph.neighbors(prev), h) {
			return model.NoDistance
		}
		total += Distance(t.store.Coords(prev), t.store.Coords(h))
	}
	return total
}

// openSet is the priority queue of the best-first search, ordered by
// estimate and then by insertion.
type openSet struct {
	items openHeap
	seq   uint64
}

func (o *openSet) Len() int { return len(o.items) }

func (o *openSet) push(h kb.Handle, estimate int) {
	heap.Push(&o.items, openItem{town: h, estimate: estimate, seq: o.seq})
	o.seq++
}

func (o *openSet) pop() kb.Handle {
	return heap.Pop(&o.items).(openItem).town
}

type openItem struct {
	town     kb.Handle
	estimate int
	seq      uint64
}

type openHeap []openItem

func (h openHeap) Len() int      { return len(h) }
func (h openHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h openHeap) Less(i, j int) bool {
	if h[i].estimate != h[j].estimate {
		return h[i].estimate < h[j].estimate
	}
	return h[i].seq < h[j].seq
}

func (h *openHeap) Push(x any) { *h = append(*h, x.(openItem)) }

func (h *openHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
