package steps

import (
	"context"
	"fmt"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
)

// RegenerateInput drives a replace-the-free-suggestions regeneration.
type RegenerateInput struct {
	Store   *graph.Store
	Payload domain.StepPayload

	// ProblemID selects the per-problem solution pool to regenerate. Empty
	// regenerates the session's problem-suggestion batch.
	ProblemID string
}

// RegenerateProblemTitles replaces the free (unselected) problem suggestions
// with a fresh batch. Selected suggestions survive with their ids; the new
// batch excludes every title being replaced so it stays disjoint from the old.
func RegenerateProblemTitles(ctx context.Context, d Deps, in RegenerateInput) (SuggestionsOutput, error) {
	if err := d.check("regenerate problems"); err != nil {
		return SuggestionsOutput{}, err
	}
	if in.Store == nil {
		return SuggestionsOutput{}, fmt.Errorf("regenerate problems: missing session store")
	}

	plan, err := in.Store.PlanRegenerate(graph.NodeProblemSuggestions)
	if err != nil {
		return SuggestionsOutput{}, err
	}

	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return SuggestionsOutput{}, err
	}
	exclusions := append(append([]string(nil), plan.Exclusions...), in.Payload.ExcludeTitles...)

	req := domain.GenerationRequest{
		Kind: domain.KindProblemTitles,
		Inputs: map[string]any{
			"service_area":   in.Payload.ServiceAreaName,
			"industries":     in.Payload.Industries,
			"context":        contextBlocks,
			"count":          plan.OriginalCount,
			"prompt_version": promptVersionOf(domain.KindProblemTitles),
		},
		Exclusions:   exclusions,
		FocusAngle:   in.Payload.FocusAngle,
		ForceRefresh: true,
	}
	pin := prompts.Input{
		ServiceAreaName: in.Payload.ServiceAreaName,
		Industries:      in.Payload.Industries,
		ContextBlocks:   contextBlocks,
		Count:           plan.OriginalCount,
	}

	fresh, err := generateSuggestions(ctx, d, req, pin)
	if err != nil {
		return SuggestionsOutput{}, err
	}

	merged := graph.MergeRegenerated(plan.Preserved, fresh, plan.OriginalCount)
	in.Store.ApplyRegenerated(graph.NodeProblemSuggestions, merged)
	return SuggestionsOutput{Suggestions: merged}, nil
}

// RegenerateSolutionTitles replaces one problem's solution pool. A committed
// solution for that problem is preserved through the merge; everything else is
// replaced.
func RegenerateSolutionTitles(ctx context.Context, d Deps, in RegenerateInput) (SuggestionsOutput, error) {
	if err := d.check("regenerate solutions"); err != nil {
		return SuggestionsOutput{}, err
	}
	if in.Store == nil {
		return SuggestionsOutput{}, fmt.Errorf("regenerate solutions: missing session store")
	}
	if in.ProblemID == "" {
		return SuggestionsOutput{}, fmt.Errorf("regenerate solutions: missing problem id")
	}

	pool := in.Store.SolutionSuggestions(in.ProblemID)
	if len(pool) == 0 {
		return SuggestionsOutput{}, graph.ErrNothingToRegenerate
	}
	problemTitle := titlesByID(in.Store.Suggestions(graph.NodeProblemSuggestions))[in.ProblemID]
	if problemTitle == "" {
		return SuggestionsOutput{}, fmt.Errorf("regenerate solutions: %w: %s", graph.ErrUnknownSuggestion, in.ProblemID)
	}

	var preserved []domain.Suggestion
	if solutionID, ok := in.Store.SelectedSolution(in.ProblemID); ok {
		for _, sug := range pool {
			if sug.ID.String() == solutionID {
				preserved = append(preserved, sug)
			}
		}
		if len(preserved) == len(pool) {
			return SuggestionsOutput{}, graph.ErrNothingToRegenerate
		}
	}

	exclusions := make([]string, 0, len(pool)+len(in.Payload.ExcludeTitles))
	for _, sug := range pool {
		exclusions = append(exclusions, sug.Title)
	}
	exclusions = append(exclusions, in.Payload.ExcludeTitles...)

	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return SuggestionsOutput{}, err
	}

	req := domain.GenerationRequest{
		Kind: domain.KindSolutionTitles,
		Inputs: map[string]any{
			"service_area":   in.Payload.ServiceAreaName,
			"problem":        problemTitle,
			"industries":     in.Payload.Industries,
			"context":        contextBlocks,
			"count":          len(pool),
			"prompt_version": promptVersionOf(domain.KindSolutionTitles),
		},
		Exclusions:   exclusions,
		FocusAngle:   in.Payload.FocusAngle,
		ForceRefresh: true,
	}
	pin := prompts.Input{
		ServiceAreaName: in.Payload.ServiceAreaName,
		Industries:      in.Payload.Industries,
		ContextBlocks:   contextBlocks,
		ProblemTitle:    problemTitle,
		Count:           len(pool),
	}

	fresh, err := generateSuggestions(ctx, d, req, pin)
	if err != nil {
		return SuggestionsOutput{}, err
	}

	merged := graph.MergeRegenerated(preserved, fresh, len(pool))
	in.Store.SetSolutionSuggestions(in.ProblemID, merged)
	return SuggestionsOutput{Suggestions: merged}, nil
}
