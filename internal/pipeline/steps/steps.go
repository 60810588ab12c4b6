package steps

import (
	"context"
	"fmt"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/cache"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/parser"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

// Deps carries the shared collaborators every pipeline step needs. The graph
// store is per-session and travels in each step's input instead.
type Deps struct {
	Log     *logger.Logger
	Client  gemini.Client
	Cache   *cache.Store
	Limiter ratelimit.Limiter

	// Model pins the cache identity. Empty uses the client's default model.
	Model string
}

func (d Deps) check(step string) error {
	if d.Log == nil || d.Client == nil || d.Cache == nil || d.Limiter == nil {
		return fmt.Errorf("%s: missing deps", step)
	}
	return nil
}

// Default batch sizes per suggestion-bearing step.
const (
	DefaultProblemCount  = 10
	DefaultSolutionCount = 5
)

func kindOptions(kind domain.GenerationKind, model string) gemini.Options {
	opts := gemini.Options{Model: model}
	switch kind {
	case domain.KindSummarizeContext:
		opts.Temperature = 0.3
		opts.MaxOutputTokens = 1024
	case domain.KindContent:
		opts.Temperature = 0.7
		opts.MaxOutputTokens = 4096
		opts.ResponseMIMEType = "application/json"
	case domain.KindEmail:
		opts.Temperature = 0.6
		opts.MaxOutputTokens = 2048
		opts.ResponseMIMEType = "application/json"
	default:
		opts.Temperature = 0.8
		opts.MaxOutputTokens = 2048
		opts.ResponseMIMEType = "application/json"
	}
	return opts
}

// callModel renders the prompt for req, reserves rate-limit budget, and issues
// the external call. Cache hits never reach this function, so only real calls
// count against the window.
func callModel(ctx context.Context, d Deps, req domain.GenerationRequest, in prompts.Input) (string, error) {
	prompt, err := prompts.BuildRequest(req, in)
	if err != nil {
		return "", err
	}
	if err := d.Limiter.CheckAndReserve(ctx); err != nil {
		return "", err
	}
	res, err := d.Client.Generate(ctx, prompt, kindOptions(req.Kind, d.Model))
	if err != nil {
		return "", err
	}
	d.Log.Info("Generation call completed",
		"kind", string(req.Kind),
		"model", res.Model,
		"total_tokens", res.Usage.TotalTokens,
		"cost_usd", res.CostUSD,
	)
	return res.Text, nil
}

// generateSuggestions is the shared cache-through path for suggestion steps.
func generateSuggestions(ctx context.Context, d Deps, req domain.GenerationRequest, in prompts.Input) ([]domain.Suggestion, error) {
	key := cache.Key(req, d.Model)
	if req.ForceRefresh {
		d.Cache.Delete(key)
	}
	v, err := d.Cache.GetOrCompute(key, func() (any, error) {
		raw, err := callModel(ctx, d, req, in)
		if err != nil {
			return nil, err
		}
		return parser.ParseSuggestions(raw, req.Kind)
	}, cache.DefaultTTL)
	if err != nil {
		return nil, err
	}
	sugs, ok := v.([]domain.Suggestion)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected cached value %T", string(req.Kind), v)
	}
	return sugs, nil
}

// promptVersionOf mixes the template version into the request identity so a
// prompt revision invalidates stale cached results by construction.
func promptVersionOf(kind domain.GenerationKind) int {
	return prompts.Version(kind)
}

func titlesByID(sugs []domain.Suggestion) map[string]string {
	m := make(map[string]string, len(sugs))
	for _, s := range sugs {
		m[s.ID.String()] = s.Title
	}
	return m
}

// Run dispatches one pipeline step by kind against a session store.
func Run(ctx context.Context, d Deps, store *graph.Store, kind domain.GenerationKind, payload domain.StepPayload) (any, error) {
	switch kind {
	case domain.KindProblemTitles:
		return GenerateProblemTitles(ctx, d, ProblemTitlesInput{Store: store, Payload: payload})
	case domain.KindSolutionTitles:
		return GenerateSolutionTitles(ctx, d, SolutionTitlesInput{Store: store, Payload: payload})
	case domain.KindOutline:
		return GenerateOutline(ctx, d, OutlineInput{Store: store, Payload: payload})
	case domain.KindContent:
		return GenerateContent(ctx, d, ContentInput{Store: store, Payload: payload})
	default:
		return nil, fmt.Errorf("unsupported step kind: %s", string(kind))
	}
}
