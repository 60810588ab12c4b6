package graph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

// Registry holds the per-session stores. Sessions live for the editing
// session only; nothing here is persisted.
type Registry struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: map[uuid.UUID]*Store{}}
}

// GetOrCreate returns the session's store, creating it on first use.
func (r *Registry) GetOrCreate(sessionID uuid.UUID) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[sessionID]; ok {
		return s
	}
	s := NewStore(sessionID)
	r.stores[sessionID] = s
	return s
}

// Drop discards a session's state.
func (r *Registry) Drop(sessionID uuid.UUID) {
	r.mu.Lock()
	delete(r.stores, sessionID)
	r.mu.Unlock()
}

// NodeSnapshot is the externally visible state of one chain node.
type NodeSnapshot struct {
	Suggestions []domain.Suggestion `json:"suggestions,omitempty"`
	Selection   []string            `json:"selection,omitempty"`
	Value       any                 `json:"value,omitempty"`
	Version     uint64              `json:"version"`
	Stale       bool                `json:"stale"`
}

// Snapshot is the full session view served to callers.
type Snapshot struct {
	SessionID           uuid.UUID                      `json:"session_id"`
	Nodes               map[Node]NodeSnapshot          `json:"nodes"`
	SolutionSuggestions map[string][]domain.Suggestion `json:"solution_suggestions,omitempty"`
	SelectedSolutions   map[string]string              `json:"selected_solutions,omitempty"`
}

// Snapshot renders the store's current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:           s.SessionID,
		Nodes:               make(map[Node]NodeSnapshot, len(Chain)),
		SolutionSuggestions: map[string][]domain.Suggestion{},
		SelectedSolutions:   map[string]string{},
	}
	for _, n := range Chain {
		snap.Nodes[n] = NodeSnapshot{
			Suggestions: s.Suggestions(n),
			Selection:   s.Selection(n),
			Value:       s.Value(n),
			Version:     s.Version(n),
			Stale:       s.Stale(n),
		}
	}
	s.mu.Lock()
	for problemID, sugs := range s.solutionSuggestions {
		snap.SolutionSuggestions[problemID] = append([]domain.Suggestion(nil), sugs...)
	}
	for problemID, id := range s.selectedSolutions {
		snap.SelectedSolutions[problemID] = id
	}
	s.mu.Unlock()
	return snap
}
