package graph

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegistryReturnsSameStorePerSession(t *testing.T) {
	reg := NewRegistry()
	a := uuid.New()
	b := uuid.New()

	if reg.GetOrCreate(a) != reg.GetOrCreate(a) {
		t.Fatalf("expected the same store for repeated lookups of one session")
	}
	if reg.GetOrCreate(a) == reg.GetOrCreate(b) {
		t.Fatalf("expected distinct stores for distinct sessions")
	}

	first := reg.GetOrCreate(a)
	reg.Drop(a)
	if reg.GetOrCreate(a) == first {
		t.Fatalf("expected a fresh store after Drop")
	}
}

func TestSnapshotReflectsStoreState(t *testing.T) {
	store, sugs := seededStore(t)

	if _, err := store.ChangeSelection(NodePrimaryProblem, ids(sugs, 0)); err != nil {
		t.Fatalf("select primary: %v", err)
	}

	snap := store.Snapshot()
	if snap.SessionID != store.SessionID {
		t.Fatalf("snapshot session id mismatch")
	}
	node, ok := snap.Nodes[NodeProblemSuggestions]
	if !ok {
		t.Fatalf("missing problemSuggestions node")
	}
	if len(node.Suggestions) != len(sugs) {
		t.Fatalf("expected %d suggestions in snapshot, got %d", len(sugs), len(node.Suggestions))
	}
	primary := snap.Nodes[NodePrimaryProblem]
	if len(primary.Selection) != 1 || primary.Selection[0] != sugs[0].ID.String() {
		t.Fatalf("snapshot primary selection %v", primary.Selection)
	}
	if outline := snap.Nodes[NodeOutline]; !outline.Stale {
		t.Fatalf("outline should report stale before any value is committed")
	}

	// Mutating the snapshot must not leak into the store.
	node.Suggestions[0].Title = "mutated"
	if store.Suggestions(NodeProblemSuggestions)[0].Title == "mutated" {
		t.Fatalf("snapshot shares backing array with store")
	}
}
