package steps

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
)

// ProblemTitlesInput drives the problem-suggestion step for one session.
type ProblemTitlesInput struct {
	Store   *graph.Store
	Payload domain.StepPayload
	Count   int
}

// SuggestionsOutput is the common result of a suggestion-bearing step.
type SuggestionsOutput struct {
	Suggestions []domain.Suggestion `json:"suggestions"`
}

// GenerateProblemTitles produces the problem-suggestion batch and commits it
// to the session's problemSuggestions node.
func GenerateProblemTitles(ctx context.Context, d Deps, in ProblemTitlesInput) (SuggestionsOutput, error) {
	if err := d.check("problem titles"); err != nil {
		return SuggestionsOutput{}, err
	}
	if in.Store == nil {
		return SuggestionsOutput{}, fmt.Errorf("problem titles: missing session store")
	}
	count := in.Count
	if count <= 0 {
		count = DefaultProblemCount
	}

	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return SuggestionsOutput{}, err
	}
	assetBlocks, err := ContextBlocks(ctx, d, in.Payload.ExistingAssets)
	if err != nil {
		return SuggestionsOutput{}, err
	}

	req := domain.GenerationRequest{
		Kind: domain.KindProblemTitles,
		Inputs: map[string]any{
			"service_area":   in.Payload.ServiceAreaName,
			"industries":     in.Payload.Industries,
			"context":        contextBlocks,
			"assets":         assetBlocks,
			"count":          count,
			"prompt_version": promptVersionOf(domain.KindProblemTitles),
		},
		Exclusions:   in.Payload.ExcludeTitles,
		FocusAngle:   in.Payload.FocusAngle,
		ForceRefresh: in.Payload.ForceRefresh,
	}
	pin := prompts.Input{
		ServiceAreaName: in.Payload.ServiceAreaName,
		Industries:      in.Payload.Industries,
		ContextBlocks:   contextBlocks,
		AssetBlocks:     assetBlocks,
		PreviousTitles:  in.Payload.PreviousTitles,
		Count:           count,
	}

	sugs, err := generateSuggestions(ctx, d, req, pin)
	if err != nil {
		return SuggestionsOutput{}, err
	}
	in.Store.SetSuggestions(graph.NodeProblemSuggestions, sugs)
	return SuggestionsOutput{Suggestions: sugs}, nil
}

// SolutionTitlesInput drives the per-problem solution fan-out.
type SolutionTitlesInput struct {
	Store   *graph.Store
	Payload domain.StepPayload
	Count   int
}

// SolutionTitlesOutput maps each selected problem id to its candidate batch.
type SolutionTitlesOutput struct {
	ByProblem map[string][]domain.Suggestion `json:"by_problem"`
}

// GenerateSolutionTitles fans out one generation call per selected problem.
// Each branch passes through the limiter and the cache independently; one
// failing branch fails the step and cancels its siblings.
func GenerateSolutionTitles(ctx context.Context, d Deps, in SolutionTitlesInput) (SolutionTitlesOutput, error) {
	if err := d.check("solution titles"); err != nil {
		return SolutionTitlesOutput{}, err
	}
	if in.Store == nil {
		return SolutionTitlesOutput{}, fmt.Errorf("solution titles: missing session store")
	}
	selected := in.Store.Selection(graph.NodeSelectedProblems)
	if len(selected) == 0 {
		return SolutionTitlesOutput{}, fmt.Errorf("solution titles: no problems selected")
	}
	count := in.Count
	if count <= 0 {
		count = DefaultSolutionCount
	}

	titles := titlesByID(in.Store.Suggestions(graph.NodeProblemSuggestions))
	var primaryTitle string
	if primary := in.Store.Selection(graph.NodePrimaryProblem); len(primary) > 0 {
		primaryTitle = titles[primary[0]]
	}

	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return SolutionTitlesOutput{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	byProblem := make(map[string][]domain.Suggestion, len(selected))
	for _, problemID := range selected {
		problemID := problemID
		problemTitle, ok := titles[problemID]
		if !ok {
			return SolutionTitlesOutput{}, fmt.Errorf("solution titles: %w: %s", graph.ErrUnknownSuggestion, problemID)
		}
		g.Go(func() error {
			req := domain.GenerationRequest{
				Kind: domain.KindSolutionTitles,
				Inputs: map[string]any{
					"service_area":   in.Payload.ServiceAreaName,
					"problem":        problemTitle,
					"primary":        primaryTitle,
					"industries":     in.Payload.Industries,
					"context":        contextBlocks,
					"count":          count,
					"prompt_version": promptVersionOf(domain.KindSolutionTitles),
				},
				Exclusions:   in.Payload.ExcludeTitles,
				FocusAngle:   in.Payload.FocusAngle,
				ForceRefresh: in.Payload.ForceRefresh,
			}
			pin := prompts.Input{
				ServiceAreaName: in.Payload.ServiceAreaName,
				Industries:      in.Payload.Industries,
				ContextBlocks:   contextBlocks,
				PrimaryProblem:  primaryTitle,
				ProblemTitle:    problemTitle,
				Count:           count,
			}
			sugs, err := generateSuggestions(gctx, d, req, pin)
			if err != nil {
				return fmt.Errorf("problem %q: %w", problemTitle, err)
			}
			mu.Lock()
			byProblem[problemID] = sugs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SolutionTitlesOutput{}, err
	}

	for problemID, sugs := range byProblem {
		in.Store.SetSolutionSuggestions(problemID, sugs)
	}
	return SolutionTitlesOutput{ByProblem: byProblem}, nil
}
