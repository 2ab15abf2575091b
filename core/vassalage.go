package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/signalsfoundry/realm/kb"
)

var (
	ErrVassalHasMaster = errors.New("vassal already has a master")
	ErrVassalCycle     = errors.New("vassalship would create a cycle")
)

// VassalageForest is the tax hierarchy: each town has at most one master
// and any number of vassals, kept in attachment order.
//
// Every walk over the forest uses an explicit stack and a visited mark, so
// a cycle injected with the guard disabled terminates instead of recursing
// forever.
type VassalageForest struct {
	store *kb.KnowledgeBase

	master  map[kb.Handle]kb.Handle
	vassals map[kb.Handle][]kb.Handle

	cycleGuard bool
}

// NewVassalageForest creates an empty forest over the towns in store. With
// cycleGuard set, Attach refuses links that would make a town its own
// ancestor. Removing a town from the store detaches it here.
func NewVassalageForest(store *kb.KnowledgeBase, cycleGuard bool) *VassalageForest {
	f := &VassalageForest{
		store:      store,
		master:     make(map[kb.Handle]kb.Handle),
		vassals:    make(map[kb.Handle][]kb.Handle),
		cycleGuard: cycleGuard,
	}
	store.Subscribe(f.handleStoreEvent)
	return f
}

func (f *VassalageForest) handleStoreEvent(e kb.Event) {
	switch e.Type {
	case kb.EventTownRemoved:
		f.detach(e.Handle)
	case kb.EventCleared:
		f.Clear()
	}
}

// Attach makes vassal pay taxes to master. The vassal must exist and have
// no master yet, and the master must exist.
func (f *VassalageForest) Attach(vassal, master string) error {
	hv, ok := f.store.Lookup(vassal)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTownNotFound, vassal)
	}
	if _, has := f.master[hv]; has {
		return fmt.Errorf("%w: %q", ErrVassalHasMaster, vassal)
	}
	hm, ok := f.store.Lookup(master)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTownNotFound, master)
	}
	if f.cycleGuard && f.isAncestorOrSelf(hv, hm) {
		return fmt.Errorf("%w: %q under %q", ErrVassalCycle, vassal, master)
	}

	f.master[hv] = hm
	f.vassals[hm] = append(f.vassals[hm], hv)
	return nil
}

// isAncestorOrSelf reports whether candidate appears on h's chain of masters,
// h included.
func (f *VassalageForest) isAncestorOrSelf(candidate, h kb.Handle) bool {
	seen := make(map[kb.Handle]bool)
	for cur, ok := h, true; ok && !seen[cur]; cur, ok = f.master[cur] {
		if cur == candidate {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Vassals returns the IDs of the immediate vassals of id.
func (f *VassalageForest) Vassals(id string) ([]string, error) {
	h, ok := f.store.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	out := make([]string, 0, len(f.vassals[h]))
	for _, v := range f.vassals[h] {
		out = append(out, f.store.ID(v))
	}
	return out, nil
}

// AncestorChain returns id followed by its master, its master's master and
// so on up to a town without a master.
func (f *VassalageForest) AncestorChain(id string) ([]string, error) {
	h, ok := f.store.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	var out []string
	seen := make(map[kb.Handle]bool)
	for cur, ok := h, true; ok && !seen[cur]; cur, ok = f.master[cur] {
		seen[cur] = true
		out = append(out, f.store.ID(cur))
	}
	return out, nil
}

// detach unlinks h from the hierarchy. Its vassals move under h's master,
// or become roots if h had none.
func (f *VassalageForest) detach(h kb.Handle) {
	m, hasMaster := f.master[h]
	children := slices.Clone(f.vassals[h])

	if hasMaster {
		f.vassals[m], _ = without(f.vassals[m], h)
	}
	for _, c := range children {
		if hasMaster && c != m {
			f.master[c] = m
			f.vassals[m] = append(f.vassals[m], c)
		} else {
			delete(f.master, c)
		}
	}
	delete(f.master, h)
	delete(f.vassals, h)
}

// Master returns the ID of the town id pays taxes to, or "" when id is a
// root.
func (f *VassalageForest) Master(id string) (string, error) {
	h, ok := f.store.Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	m, ok := f.master[h]
	if !ok {
		return "", nil
	}
	return f.store.ID(m), nil
}

// Len returns the number of vassalships.
func (f *VassalageForest) Len() int {
	return len(f.master)
}

// Clear drops every vassalship.
func (f *VassalageForest) Clear() {
	f.master = make(map[kb.Handle]kb.Handle)
	f.vassals = make(map[kb.Handle][]kb.Handle)
}

// DeepestChain returns the longest path from id down to a leaf of its vassal
// subtree, id first. Among equally long branches the vassal attached first
// wins.
func (f *VassalageForest) DeepestChain(id string) ([]string, error) {
	h, ok := f.store.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}

	n := f.store.Cap()
	length := make([]int, n)
	next := make([]kb.Handle, n)
	hasNext := make([]bool, n)

	f.postOrder(h, func(node kb.Handle, children []kb.Handle) {
		best := 0
		for _, c := range children {
			if l := length[c.Index()]; l > best {
				best = l
				next[node.Index()] = c
				hasNext[node.Index()] = true
			}
		}
		length[node.Index()] = best + 1
	})

	out := make([]string, 0, length[h.Index()])
	for cur := h; ; cur = next[cur.Index()] {
		out = append(out, f.store.ID(cur))
		if !hasNext[cur.Index()] {
			break
		}
	}
	return out, nil
}

// AggregateTax returns the tax id collects: its own tax plus a tenth of each
// vassal's aggregate, minus a tenth of the result when id itself has a
// master. Tenths truncate toward zero.
func (f *VassalageForest) AggregateTax(id string) (int, error) {
	h, ok := f.store.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}

	agg := make([]int, f.store.Cap())
	f.postOrder(h, func(node kb.Handle, children []kb.Handle) {
		town, _ := f.store.Town(node)
		total := town.Tax
		for _, c := range children {
			total += agg[c.Index()] / 10
		}
		agg[node.Index()] = total
	})

	total := agg[h.Index()]
	if _, hasMaster := f.master[h]; hasMaster {
		total -= total / 10
	}
	return total, nil
}

// postOrder visits the vassal subtree of root children-first. visit
// receives only the children that were completed before their parent, which
// in a proper forest is all of them; a child already on the stack closes a
// cycle and is left out.
func (f *VassalageForest) postOrder(root kb.Handle, visit func(node kb.Handle, children []kb.Handle)) {
	type frame struct {
		node kb.Handle
		next int
	}

	marks := make([]visitMark, f.store.Cap())
	marks[root.Index()] = inProgress
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := f.vassals[top.node]
		if top.next < len(children) {
			c := children[top.next]
			top.next++
			if marks[c.Index()] == unvisited {
				marks[c.Index()] = inProgress
				stack = append(stack, frame{node: c})
			}
			continue
		}

		done := make([]kb.Handle, 0, len(children))
		for _, c := range children {
			if marks[c.Index()] == finished {
				done = append(done, c)
			}
		}
		visit(top.node, done)
		marks[top.node.Index()] = finished
		stack = stack[:len(stack)-1]
	}
}
