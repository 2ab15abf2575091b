package kb

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/realm/model"
)

var (
	ErrTownExists   = errors.New("town already exists")
	ErrTownNotFound = errors.New("town not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventTownAdded EventType = iota
	EventTownRenamed
	EventTownRemoved
	EventCleared
)

// Event is emitted to subscribers after the KB has changed. Relations kept
// outside the KB (roads, vassalage) subscribe to stay consistent with it.
type Event struct {
	Type   EventType
	Handle Handle
	Town   model.Town
}

// Handle is a stable reference to a town slot. It stays valid across
// insertions and removals of other towns; once its own town is removed the
// slot's generation moves on and the handle no longer resolves.
type Handle struct {
	index      uint32
	generation uint32
}

// Index returns the slot index of the handle. Indices are dense in
// [0, Cap()) and can be used to address per-town scratch slices.
func (h Handle) Index() int { return int(h.index) }

type slot struct {
	town       model.Town
	generation uint32
	live       bool
}

// KnowledgeBase is the in-memory town store. Towns live in an arena of
// slots; relations elsewhere hold Handles, never pointers into the arena.
//
// It is not safe for concurrent use.
type KnowledgeBase struct {
	slots []slot
	free  []uint32
	byID  map[string]Handle

	subs []func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		byID: make(map[string]Handle),
	}
}

// AddTown inserts a new town. It returns ErrTownExists if the ID is taken.
func (kb *KnowledgeBase) AddTown(t model.Town) (Handle, error) {
	if _, exists := kb.byID[t.ID]; exists {
		return Handle{}, fmt.Errorf("%w: %q", ErrTownExists, t.ID)
	}

	var h Handle
	if n := len(kb.free); n > 0 {
		idx := kb.free[n-1]
		kb.free = kb.free[:n-1]
		s := &kb.slots[idx]
		s.town = t
		s.live = true
		h = Handle{index: idx, generation: s.generation}
	} else {
		kb.slots = append(kb.slots, slot{town: t, live: true})
		h = Handle{index: uint32(len(kb.slots) - 1)}
	}
	kb.byID[t.ID] = h
	kb.notify(Event{Type: EventTownAdded, Handle: h, Town: t})
	return h, nil
}

// Lookup resolves a town ID to its handle.
func (kb *KnowledgeBase) Lookup(id string) (Handle, bool) {
	h, ok := kb.byID[id]
	return h, ok
}

// Valid reports whether h still refers to a live town.
func (kb *KnowledgeBase) Valid(h Handle) bool {
	if int(h.index) >= len(kb.slots) {
		return false
	}
	s := kb.slots[h.index]
	return s.live && s.generation == h.generation
}

// Town returns a copy of the town behind h.
func (kb *KnowledgeBase) Town(h Handle) (model.Town, bool) {
	if !kb.Valid(h) {
		return model.Town{}, false
	}
	return kb.slots[h.index].town, true
}

// ID returns the identifier of the town behind h, or model.NoTownID.
func (kb *KnowledgeBase) ID(h Handle) string {
	if !kb.Valid(h) {
		return model.NoTownID
	}
	return kb.slots[h.index].town.ID
}

// Coords returns the coordinates of the town behind h, or model.NoCoord.
func (kb *KnowledgeBase) Coords(h Handle) model.Coord {
	if !kb.Valid(h) {
		return model.NoCoord
	}
	return kb.slots[h.index].town.Coords
}

// GetTown returns the town with the given ID.
func (kb *KnowledgeBase) GetTown(id string) (model.Town, bool) {
	h, ok := kb.byID[id]
	if !ok {
		return model.Town{}, false
	}
	return kb.Town(h)
}

// RenameTown changes a town's display name.
func (kb *KnowledgeBase) RenameTown(id, name string) error {
	h, ok := kb.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	s := &kb.slots[h.index]
	s.town.Name = name
	kb.notify(Event{Type: EventTownRenamed, Handle: h, Town: s.town})
	return nil
}

// RemoveTown erases a town and recycles its slot. Subscribers receive the
// removed town with its now stale handle so they can drop their relations.
func (kb *KnowledgeBase) RemoveTown(id string) error {
	h, ok := kb.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	s := &kb.slots[h.index]
	removed := s.town
	s.town = model.Town{}
	s.live = false
	s.generation++
	kb.free = append(kb.free, h.index)
	delete(kb.byID, id)

	kb.notify(Event{Type: EventTownRemoved, Handle: h, Town: removed})
	return nil
}

// Len returns the number of live towns.
func (kb *KnowledgeBase) Len() int {
	return len(kb.byID)
}

// Cap returns the number of slots ever allocated. Every live handle has
// Index() < Cap().
func (kb *KnowledgeBase) Cap() int {
	return len(kb.slots)
}

// Handles returns the handles of all live towns in slot order.
func (kb *KnowledgeBase) Handles() []Handle {
	res := make([]Handle, 0, len(kb.byID))
	for i, s := range kb.slots {
		if s.live {
			res = append(res, Handle{index: uint32(i), generation: s.generation})
		}
	}
	return res
}

// ListTowns returns a snapshot slice of all towns in slot order.
func (kb *KnowledgeBase) ListTowns() []model.Town {
	res := make([]model.Town, 0, len(kb.byID))
	for _, s := range kb.slots {
		if s.live {
			res = append(res, s.town)
		}
	}
	return res
}

// Clear drops every town. Handles issued before the call stop resolving.
func (kb *KnowledgeBase) Clear() {
	kb.free = kb.free[:0]
	for i := len(kb.slots) - 1; i >= 0; i-- {
		s := &kb.slots[i]
		if s.live {
			s.town = model.Town{}
			s.live = false
			s.generation++
		}
		kb.free = append(kb.free, uint32(i))
	}
	kb.byID = make(map[string]Handle)
	kb.notify(Event{Type: EventCleared})
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.subs = append(kb.subs, fn)
	idx := len(kb.subs) - 1

	return func() {
		if idx < 0 || idx >= len(kb.subs) {
			return
		}
		kb.subs[idx] = nil
		idx = -1
	}
}

func (kb *KnowledgeBase) notify(e Event) {
	for _, sub := range kb.subs {
		if sub != nil {
			sub(e)
		}
	}
}
