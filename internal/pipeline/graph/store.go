package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

var (
	// ErrNothingToRegenerate is the no-op result of regenerating a node with
	// zero free (unselected) suggestions to replace.
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
	// ErrSelectionFull rejects adding beyond a node's slot cap.
	ErrSelectionFull = errors.New("selection full")
	// ErrUnknownSuggestion rejects selecting an id the node never generated.
	ErrUnknownSuggestion = errors.New("unknown suggestion")
	// ErrProblemAlreadySolved rejects re-selecting a solution without an
	// explicit unlock first.
	ErrProblemAlreadySolved = errors.New("problem already has a selected solution")
)

// nodeState is the versioned value slot for one chain stage.
type nodeState struct {
	suggestions []domain.Suggestion
	selection   []string
	value       any

	// version counts content changes to this node.
	version uint64
	// computedFrom snapshots upstream versions when this node's content was
	// produced; staleness is derived from it, never set as a flag.
	computedFrom map[Node]uint64
}

// Store is the explicit, versioned dependency-node store for one editing
// session. All transitions are applied atomically under its mutex: a cascade
// fully lands before the next transition is processed.
type Store struct {
	SessionID uuid.UUID

	mu    sync.Mutex
	nodes map[Node]*nodeState

	// Solution bookkeeping is keyed per selected problem.
	solutionSuggestions map[string][]domain.Suggestion
	selectedSolutions   map[string]string
}

func NewStore(sessionID uuid.UUID) *Store {
	s := &Store{
		SessionID:           sessionID,
		nodes:               map[Node]*nodeState{},
		solutionSuggestions: map[string][]domain.Suggestion{},
		selectedSolutions:   map[string]string{},
	}
	for _, n := range Chain {
		s.nodes[n] = &nodeState{computedFrom: map[Node]uint64{}}
	}
	return s
}

func (s *Store) state(n Node) *nodeState {
	st, ok := s.nodes[n]
	if !ok {
		st = &nodeState{computedFrom: map[Node]uint64{}}
		s.nodes[n] = st
	}
	return st
}

// ---- reads ----

func (s *Store) Suggestions(n Node) []domain.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Suggestion(nil), s.state(n).suggestions...)
}

func (s *Store) Selection(n Node) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.state(n).selection...)
}

func (s *Store) Value(n Node) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(n).value
}

func (s *Store) Version(n Node) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(n).version
}

// SolutionSuggestions returns the generated candidates for one problem.
func (s *Store) SolutionSuggestions(problemID string) []domain.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Suggestion(nil), s.solutionSuggestions[problemID]...)
}

// SelectedSolution returns the committed solution id for a problem, if any.
func (s *Store) SelectedSolution(problemID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.selectedSolutions[problemID]
	return id, ok
}

// Stale reports whether any upstream node changed since n's content was
// produced. A node with no recorded provenance and no content is trivially
// stale: it has never been computed.
func (s *Store) Stale(n Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(n)
	if len(st.suggestions) == 0 && st.value == nil && len(st.selection) == 0 {
		return true
	}
	for _, up := range Upstream(n) {
		if s.state(up).version > st.computedFrom[up] {
			return true
		}
	}
	return false
}

// ---- writes ----

// upstreamSnapshot must be called with the mutex held.
func (s *Store) upstreamSnapshot(n Node) map[Node]uint64 {
	snap := map[Node]uint64{}
	for _, up := range Upstream(n) {
		snap[up] = s.state(up).version
	}
	return snap
}

// SetSuggestions replaces a node's generated candidates and records the
// upstream versions they were computed from.
func (s *Store) SetSuggestions(n Node, suggestions []domain.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(n)
	st.suggestions = append([]domain.Suggestion(nil), suggestions...)
	st.version++
	st.computedFrom = s.upstreamSnapshot(n)
}

// SetValue stores a computed artifact (outline, content, derived assets).
func (s *Store) SetValue(n Node, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(n)
	st.value = value
	st.version++
	st.computedFrom = s.upstreamSnapshot(n)
}

// SetSolutionSuggestions stores candidates for one problem and bumps the
// solutionSuggestions node version.
func (s *Store) SetSolutionSuggestions(problemID string, suggestions []domain.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solutionSuggestions[problemID] = append([]domain.Suggestion(nil), suggestions...)
	st := s.state(NodeSolutionSuggestions)
	st.version++
	st.computedFrom = s.upstreamSnapshot(NodeSolutionSuggestions)
}

// ChangeSelection commits a new selection for a node. When the new value
// differs from the previous one (set-equality on identifiers, order ignored)
// every node strictly downstream is invalidated: suggestions, selections, and
// values cleared. A reorder or same-set recommit clears nothing.
func (s *Store) ChangeSelection(n Node, newValue []string) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slots, ok := selectionSlots[n]; ok && len(newValue) > slots {
		return false, fmt.Errorf("%w: %s holds at most %d", ErrSelectionFull, n, slots)
	}
	if err := s.validateSelectable(n, newValue); err != nil {
		return false, err
	}

	st := s.state(n)
	if sameSet(st.selection, newValue) {
		// Preserve the caller's ordering without cascading.
		st.selection = append([]string(nil), newValue...)
		return false, nil
	}

	st.selection = append([]string(nil), newValue...)
	st.version++
	s.invalidateDownstream(n)
	return true, nil
}

// AddSelection appends one id to a node's selection, rejecting overflow
// without mutating the existing committed set.
func (s *Store) AddSelection(n Node, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(n)
	for _, existing := range st.selection {
		if existing == id {
			return nil
		}
	}
	if slots, ok := selectionSlots[n]; ok && len(st.selection) >= slots {
		return fmt.Errorf("%w: %s holds at most %d", ErrSelectionFull, n, slots)
	}
	if err := s.validateSelectable(n, []string{id}); err != nil {
		return err
	}
	st.selection = append(st.selection, id)
	st.version++
	s.invalidateDownstream(n)
	return nil
}

// RemoveSelection drops one id from a node's selection.
func (s *Store) RemoveSelection(n Node, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(n)
	kept := st.selection[:0]
	found := false
	for _, existing := range st.selection {
		if existing == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return nil
	}
	st.selection = kept
	st.version++
	s.invalidateDownstream(n)
	return nil
}

// SelectSolution commits one solution for a problem. A problem that already
// has a committed solution must be unlocked first; silent replacement would
// hide a cascade the user did not ask for.
func (s *Store) SelectSolution(problemID, suggestionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, solved := s.selectedSolutions[problemID]; solved {
		return ErrProblemAlreadySolved
	}
	found := false
	for _, sug := range s.solutionSuggestions[problemID] {
		if sug.ID.String() == suggestionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s for problem %s", ErrUnknownSuggestion, suggestionID, problemID)
	}

	s.selectedSolutions[problemID] = suggestionID
	st := s.state(NodeSelectedSolutions)
	st.selection = append(st.selection, suggestionID)
	st.version++
	s.invalidateDownstream(NodeSelectedSolutions)
	return nil
}

// UnlockSolution clears a committed solution so a new one can be selected.
func (s *Store) UnlockSolution(problemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.selectedSolutions[problemID]
	if !ok {
		return
	}
	delete(s.selectedSolutions, problemID)
	st := s.state(NodeSelectedSolutions)
	kept := st.selection[:0]
	for _, existing := range st.selection {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	st.selection = kept
	st.version++
	s.invalidateDownstream(NodeSelectedSolutions)
}

// validateSelectable must be called with the mutex held. Selection-bearing
// suggestion nodes only accept ids their upstream suggestion pool generated.
func (s *Store) validateSelectable(n Node, ids []string) error {
	var pool []domain.Suggestion
	switch n {
	case NodePrimaryProblem, NodeSelectedProblems:
		pool = s.state(NodeProblemSuggestions).suggestions
	default:
		return nil
	}
	valid := make(map[string]bool, len(pool))
	for _, sug := range pool {
		valid[sug.ID.String()] = true
	}
	for _, id := range ids {
		if !valid[id] {
			return fmt.Errorf("%w: %s for node %s", ErrUnknownSuggestion, id, n)
		}
	}
	return nil
}

// invalidateDownstream must be called with the mutex held.
func (s *Store) invalidateDownstream(n Node) {
	for _, down := range Downstream(n) {
		st := s.state(down)
		cleared := len(st.suggestions) > 0 || len(st.selection) > 0 || st.value != nil
		st.suggestions = nil
		st.selection = nil
		st.value = nil
		st.computedFrom = map[Node]uint64{}
		if cleared {
			st.version++
		}
		if down == NodeSolutionSuggestions {
			s.solutionSuggestions = map[string][]domain.Suggestion{}
		}
		if down == NodeSelectedSolutions {
			s.selectedSolutions = map[string]string{}
		}
	}
}

// ---- regeneration ----

// FreeSuggestions returns the node's suggestions not referenced by its
// dependent selections, i.e. the ones a regenerate would replace.
func (s *Store) FreeSuggestions(n Node) []domain.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeSuggestionsLocked(n)
}

func (s *Store) freeSuggestionsLocked(n Node) []domain.Suggestion {
	st := s.state(n)
	selected := s.selectedIDsLocked(n)
	var free []domain.Suggestion
	for _, sug := range st.suggestions {
		if !selected[sug.ID.String()] {
			free = append(free, sug)
		}
	}
	return free
}

// selectedIDsLocked gathers the ids committed against node n's suggestions.
func (s *Store) selectedIDsLocked(n Node) map[string]bool {
	selected := map[string]bool{}
	if n == NodeProblemSuggestions {
		for _, id := range s.state(NodePrimaryProblem).selection {
			selected[id] = true
		}
		for _, id := range s.state(NodeSelectedProblems).selection {
			selected[id] = true
		}
	}
	return selected
}

// RegeneratePlan is what a regeneration call needs: the titles to exclude
// (everything being replaced) and the suggestions being preserved.
type RegeneratePlan struct {
	Exclusions    []string
	Preserved     []domain.Suggestion
	OriginalCount int
}

// PlanRegenerate prepares a regeneration of node n. When the node has an
// active selection its selected suggestions are preserved and only the free
// ones are replaced; with no selection the whole batch is replaced. Zero free
// suggestions is a no-op reported as ErrNothingToRegenerate.
func (s *Store) PlanRegenerate(n Node) (RegeneratePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(n)
	if len(st.suggestions) == 0 {
		return RegeneratePlan{}, ErrNothingToRegenerate
	}
	free := s.freeSuggestionsLocked(n)
	if len(free) == 0 {
		return RegeneratePlan{}, ErrNothingToRegenerate
	}

	selected := s.selectedIDsLocked(n)
	var preserved []domain.Suggestion
	if len(selected) > 0 {
		for _, sug := range st.suggestions {
			if selected[sug.ID.String()] {
				preserved = append(preserved, sug)
			}
		}
	}

	exclusions := make([]string, 0, len(st.suggestions))
	for _, sug := range st.suggestions {
		exclusions = append(exclusions, sug.Title)
	}
	return RegeneratePlan{
		Exclusions:    exclusions,
		Preserved:     preserved,
		OriginalCount: len(st.suggestions),
	}, nil
}

// MergeRegenerated merges preserved suggestions with a fresh batch:
// deduplicated case-insensitively by content hash, preserved entries keep
// their ids, and the result is backfilled with new suggestions up to the
// original count.
func MergeRegenerated(preserved, fresh []domain.Suggestion, originalCount int) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, originalCount)
	seen := map[string]bool{}
	for _, sug := range preserved {
		hash := sug.ContentHash()
		if seen[hash] {
			continue
		}
		seen[hash] = true
		out = append(out, sug)
	}
	for _, sug := range fresh {
		if len(out) >= originalCount {
			break
		}
		hash := sug.ContentHash()
		if seen[hash] {
			continue
		}
		seen[hash] = true
		out = append(out, sug)
	}
	return out
}

// ApplyRegenerated commits a merged batch to the node. When every id the
// dependent selections reference survived the merge (the preserve path) the
// committed selections are still valid and nothing cascades; a full
// replacement destroys those references and invalidates everything
// downstream.
func (s *Store) ApplyRegenerated(n Node, merged []domain.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(n)
	st.suggestions = append([]domain.Suggestion(nil), merged...)
	st.version++
	st.computedFrom = s.upstreamSnapshot(n)

	selected := s.selectedIDsLocked(n)
	if len(selected) > 0 {
		present := make(map[string]bool, len(merged))
		for _, sug := range merged {
			present[sug.ID.String()] = true
		}
		intact := true
		for id := range selected {
			if !present[id] {
				intact = false
				break
			}
		}
		if intact {
			return
		}
	}
	s.invalidateDownstream(n)
}
