package steps

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/cache"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/parser"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OutlineInput drives the outline step. The outline is drafted for the
// session's primary problem and its committed solution.
type OutlineInput struct {
	Store   *graph.Store
	Payload domain.StepPayload
}

type OutlineOutput struct {
	Outline domain.Outline `json:"outline"`
}

// GenerateOutline drafts the outline and commits it to the outline node.
func GenerateOutline(ctx context.Context, d Deps, in OutlineInput) (OutlineOutput, error) {
	if err := d.check("outline"); err != nil {
		return OutlineOutput{}, err
	}
	if in.Store == nil {
		return OutlineOutput{}, fmt.Errorf("outline: missing session store")
	}

	problemTitle, solutionTitle, err := resolvePair(in.Store)
	if err != nil {
		return OutlineOutput{}, fmt.Errorf("outline: %w", err)
	}
	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return OutlineOutput{}, err
	}

	req := domain.GenerationRequest{
		Kind: domain.KindOutline,
		Inputs: map[string]any{
			"service_area":   in.Payload.ServiceAreaName,
			"problem":        problemTitle,
			"solution":       solutionTitle,
			"industries":     in.Payload.Industries,
			"context":        contextBlocks,
			"prompt_version": promptVersionOf(domain.KindOutline),
		},
		ForceRefresh: in.Payload.ForceRefresh,
	}
	pin := prompts.Input{
		ServiceAreaName: in.Payload.ServiceAreaName,
		Industries:      in.Payload.Industries,
		ContextBlocks:   contextBlocks,
		ProblemTitle:    problemTitle,
		SolutionTitle:   solutionTitle,
	}

	key := cache.Key(req, d.Model)
	if req.ForceRefresh {
		d.Cache.Delete(key)
	}
	v, err := d.Cache.GetOrCompute(key, func() (any, error) {
		raw, err := callModel(ctx, d, req, pin)
		if err != nil {
			return nil, err
		}
		return parser.ParseOutline(raw)
	}, cache.DefaultTTL)
	if err != nil {
		return OutlineOutput{}, err
	}
	outline, ok := v.(domain.Outline)
	if !ok {
		return OutlineOutput{}, fmt.Errorf("outline: unexpected cached value %T", v)
	}

	in.Store.SetValue(graph.NodeOutline, outline)
	return OutlineOutput{Outline: outline}, nil
}

// ContentInput drives the full-content step from the committed outline.
type ContentInput struct {
	Store   *graph.Store
	Payload domain.StepPayload
}

type ContentOutput struct {
	Draft domain.ContentDraft `json:"draft"`
}

// GenerateContent writes the piece from the outline node's committed value.
// A missing or stale outline is a precondition failure, not a trigger for an
// implicit upstream re-generation.
func GenerateContent(ctx context.Context, d Deps, in ContentInput) (ContentOutput, error) {
	if err := d.check("content"); err != nil {
		return ContentOutput{}, err
	}
	if in.Store == nil {
		return ContentOutput{}, fmt.Errorf("content: missing session store")
	}

	outline, ok := in.Store.Value(graph.NodeOutline).(domain.Outline)
	if !ok {
		return ContentOutput{}, fmt.Errorf("content: no outline committed")
	}
	if in.Store.Stale(graph.NodeOutline) {
		return ContentOutput{}, fmt.Errorf("content: outline is stale, regenerate it first")
	}
	problemTitle, solutionTitle, err := resolvePair(in.Store)
	if err != nil {
		return ContentOutput{}, fmt.Errorf("content: %w", err)
	}
	outlineJSON, err := json.MarshalToString(outline)
	if err != nil {
		return ContentOutput{}, fmt.Errorf("content: encode outline: %w", err)
	}
	contextBlocks, err := ContextBlocks(ctx, d, in.Payload.BrainContent)
	if err != nil {
		return ContentOutput{}, err
	}

	req := domain.GenerationRequest{
		Kind: domain.KindContent,
		Inputs: map[string]any{
			"service_area":   in.Payload.ServiceAreaName,
			"problem":        problemTitle,
			"solution":       solutionTitle,
			"outline":        outlineJSON,
			"context":        contextBlocks,
			"prompt_version": promptVersionOf(domain.KindContent),
		},
		ForceRefresh: in.Payload.ForceRefresh,
	}
	pin := prompts.Input{
		ServiceAreaName: in.Payload.ServiceAreaName,
		ContextBlocks:   contextBlocks,
		ProblemTitle:    problemTitle,
		SolutionTitle:   solutionTitle,
		OutlineJSON:     outlineJSON,
	}

	key := cache.Key(req, d.Model)
	if req.ForceRefresh {
		d.Cache.Delete(key)
	}
	v, err := d.Cache.GetOrCompute(key, func() (any, error) {
		raw, err := callModel(ctx, d, req, pin)
		if err != nil {
			return nil, err
		}
		return parser.ParseContent(raw)
	}, cache.DefaultTTL)
	if err != nil {
		return ContentOutput{}, err
	}
	draft, ok := v.(domain.ContentDraft)
	if !ok {
		return ContentOutput{}, fmt.Errorf("content: unexpected cached value %T", v)
	}

	in.Store.SetValue(graph.NodeContent, draft)
	return ContentOutput{Draft: draft}, nil
}

// resolvePair returns the primary problem title and its committed solution
// title for the artifact steps.
func resolvePair(store *graph.Store) (problemTitle, solutionTitle string, err error) {
	primary := store.Selection(graph.NodePrimaryProblem)
	if len(primary) == 0 {
		return "", "", fmt.Errorf("no primary problem selected")
	}
	problemID := primary[0]
	problemTitle = titlesByID(store.Suggestions(graph.NodeProblemSuggestions))[problemID]
	if problemTitle == "" {
		return "", "", fmt.Errorf("%w: %s", graph.ErrUnknownSuggestion, problemID)
	}

	solutionID, ok := store.SelectedSolution(problemID)
	if !ok {
		return "", "", fmt.Errorf("no solution selected for the primary problem")
	}
	solutionTitle = titlesByID(store.SolutionSuggestions(problemID))[solutionID]
	if solutionTitle == "" {
		return "", "", fmt.Errorf("%w: %s", graph.ErrUnknownSuggestion, solutionID)
	}
	return problemTitle, solutionTitle, nil
}
