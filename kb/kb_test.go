package kb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/realm/model"
)

func TestAddAndGetTown(t *testing.T) {
	store := NewKnowledgeBase()
	town := model.Town{ID: "t1", Name: "Tampere", Coords: model.Coord{X: 3, Y: 4}, Tax: 20}
	h, err := store.AddTown(town)
	if err != nil {
		t.Fatalf("AddTown error: %v", err)
	}
	got, ok := store.GetTown("t1")
	if !ok || got != town {
		t.Fatalf("GetTown returned %#v, %v, want %#v", got, ok, town)
	}
	if id := store.ID(h); id != "t1" {
		t.Fatalf("ID(handle) = %q, want t1", id)
	}
	if c := store.Coords(h); c != town.Coords {
		t.Fatalf("Coords(handle) = %#v, want %#v", c, town.Coords)
	}
}

func TestAddTownDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddTown(model.Town{ID: "t1", Name: "first"}); err != nil {
		t.Fatalf("first AddTown error: %v", err)
	}
	if _, err := store.AddTown(model.Town{ID: "t1", Name: "second"}); !errors.Is(err, ErrTownExists) {
		t.Fatalf("duplicate AddTown error = %v, want ErrTownExists", err)
	}
	got, _ := store.GetTown("t1")
	if got.Name != "first" {
		t.Fatalf("duplicate AddTown overwrote name: %q", got.Name)
	}
}

func TestRemoveTownInvalidatesHandle(t *testing.T) {
	store := NewKnowledgeBase()
	h, err := store.AddTown(model.Town{ID: "t1"})
	if err != nil {
		t.Fatalf("AddTown error: %v", err)
	}
	if err := store.RemoveTown("t1"); err != nil {
		t.Fatalf("RemoveTown error: %v", err)
	}
	if store.Valid(h) {
		t.Fatalf("handle still valid after RemoveTown")
	}
	if err := store.RemoveTown("t1"); !errors.Is(err, ErrTownNotFound) {
		t.Fatalf("second RemoveTown error = %v, want ErrTownNotFound", err)
	}

	// The freed slot is recycled but the stale handle must not resolve to
	// the newcomer.
	h2, err := store.AddTown(model.Town{ID: "t2"})
	if err != nil {
		t.Fatalf("AddTown t2 error: %v", err)
	}
	if h2.Index() != h.Index() {
		t.Fatalf("slot not recycled: got index %d, want %d", h2.Index(), h.Index())
	}
	if store.ID(h) != model.NoTownID {
		t.Fatalf("stale handle resolved to %q", store.ID(h))
	}
	if store.ID(h2) != "t2" {
		t.Fatalf("ID(h2) = %q, want t2", store.ID(h2))
	}
}

func TestListTownsAndHandles(t *testing.T) {
	store := NewKnowledgeBase()
	for i := range 3 {
		if _, err := store.AddTown(model.Town{ID: fmt.Sprintf("t-%d", i)}); err != nil {
			t.Fatalf("AddTown error: %v", err)
		}
	}
	if err := store.RemoveTown("t-1"); err != nil {
		t.Fatalf("RemoveTown error: %v", err)
	}

	if got := len(store.ListTowns()); got != 2 {
		t.Fatalf("ListTowns len=%d, want 2", got)
	}
	if got := len(store.Handles()); got != 2 {
		t.Fatalf("Handles len=%d, want 2", got)
	}
	if store.Len() != 2 || store.Cap() != 3 {
		t.Fatalf("Len/Cap = %d/%d, want 2/3", store.Len(), store.Cap())
	}
}

func TestClearInvalidatesEverything(t *testing.T) {
	store := NewKnowledgeBase()
	h, _ := store.AddTown(model.Town{ID: "a"})
	_, _ = store.AddTown(model.Town{ID: "b"})

	store.Clear()
	if store.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", store.Len())
	}
	if store.Valid(h) {
		t.Fatalf("handle valid after Clear")
	}
	h2, err := store.AddTown(model.Town{ID: "a"})
	if err != nil {
		t.Fatalf("AddTown after Clear error: %v", err)
	}
	if h2 == h {
		t.Fatalf("handle reused with the same generation after Clear")
	}
}

func TestRenameTownAndSubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddTown(model.Town{ID: "t1", Name: "Old"}); err != nil {
		t.Fatalf("AddTown error: %v", err)
	}

	var got []Event
	unsubscribe := store.Subscribe(func(e Event) {
		got = append(got, e)
	})

	if err := store.RenameTown("t1", "New"); err != nil {
		t.Fatalf("RenameTown error: %v", err)
	}
	if err := store.RenameTown("missing", "x"); !errors.Is(err, ErrTownNotFound) {
		t.Fatalf("RenameTown missing error = %v, want ErrTownNotFound", err)
	}
	if len(got) != 1 || got[0].Type != EventTownRenamed || got[0].Town.Name != "New" {
		t.Fatalf("events = %#v, want one EventTownRenamed with name New", got)
	}

	unsubscribe()
	if err := store.RemoveTown("t1"); err != nil {
		t.Fatalf("RemoveTown error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("received %d events after unsubscribe, want 1", len(got))
	}
}
