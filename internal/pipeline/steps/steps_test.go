package steps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/cache"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	reply func(prompt string) (string, error)
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, opts gemini.Options) (gemini.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	text, err := f.reply(prompt)
	if err != nil {
		return gemini.Result{}, err
	}
	return gemini.Result{Text: text, Model: "fake-model"}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type rejectingLimiter struct{}

func (rejectingLimiter) CheckAndReserve(ctx context.Context) error {
	return &ratelimit.RateLimitError{Limit: 0, ResetAt: time.Now().Add(time.Minute)}
}

func titlesJSON(prefix string, n int) string {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"title": "%s suggestion number %d", "rationale": "r"}`, prefix, i+1)
	}
	b.WriteString("]")
	return b.String()
}

func testDeps(t *testing.T, reply func(prompt string) (string, error)) (Deps, *fakeClient) {
	t.Helper()
	fc := &fakeClient{reply: reply}
	return Deps{
		Log:     logger.NewNop(),
		Client:  fc,
		Cache:   cache.NewStore(),
		Limiter: ratelimit.NewWindow(1000, time.Minute),
		Model:   "fake-model",
	}, fc
}

func basePayload() domain.StepPayload {
	return domain.StepPayload{
		ServiceAreaName: "Managed IT Services",
		Industries:      []string{"Healthcare", "Legal"},
		BrainContent: []domain.ContextBlob{
			{SourceType: domain.SourceText, ExtractedText: "We run 24/7 helpdesks for clinics.", ExtractionStatus: domain.ExtractionCompleted},
			{SourceType: domain.SourceText, ExtractedText: "HIPAA compliance audits are a specialty.", ExtractionStatus: domain.ExtractionCompleted},
		},
	}
}

func TestProblemTitlesCachesSecondCall(t *testing.T) {
	d, fc := testDeps(t, func(string) (string, error) {
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	in := ProblemTitlesInput{Store: store, Payload: basePayload()}

	first, err := GenerateProblemTitles(context.Background(), d, in)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(first.Suggestions) != 10 {
		t.Fatalf("suggestions = %d", len(first.Suggestions))
	}
	if fc.callCount() != 1 {
		t.Fatalf("client calls after first = %d", fc.callCount())
	}
	if len(store.Suggestions(graph.NodeProblemSuggestions)) != 10 {
		t.Fatalf("store not populated")
	}

	second, err := GenerateProblemTitles(context.Background(), d, in)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if fc.callCount() != 1 {
		t.Fatalf("cache miss on identical second call, calls = %d", fc.callCount())
	}
	if second.Suggestions[0].Title != first.Suggestions[0].Title {
		t.Fatalf("cached result differs")
	}
}

func TestProblemTitlesForceRefresh(t *testing.T) {
	d, fc := testDeps(t, func(string) (string, error) {
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()

	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	payload.ForceRefresh = true
	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("refresh call: %v", err)
	}
	if fc.callCount() != 2 {
		t.Fatalf("forceRefresh did not recompute, calls = %d", fc.callCount())
	}
}

func TestRateLimitedPropagatesAndIsNotCached(t *testing.T) {
	d, fc := testDeps(t, func(string) (string, error) {
		return titlesJSON("Problem", 10), nil
	})
	d.Limiter = rejectingLimiter{}
	store := graph.NewStore(uuid.New())
	in := ProblemTitlesInput{Store: store, Payload: basePayload()}

	_, err := GenerateProblemTitles(context.Background(), d, in)
	if !ratelimit.IsRateLimited(err) {
		t.Fatalf("err = %v", err)
	}
	if fc.callCount() != 0 {
		t.Fatalf("client was called past a rejecting limiter")
	}

	// The rejection must not poison the cache entry.
	d.Limiter = ratelimit.NewWindow(1000, time.Minute)
	out, err := GenerateProblemTitles(context.Background(), d, in)
	if err != nil {
		t.Fatalf("retry after limiter opened: %v", err)
	}
	if len(out.Suggestions) != 10 {
		t.Fatalf("suggestions = %d", len(out.Suggestions))
	}
}

func TestSummarizerGate(t *testing.T) {
	long := strings.Repeat("Clinics lose hours to ticket triage every single week. ", 60)
	if len(long) <= SummarizeThreshold {
		t.Fatalf("test text not long enough")
	}
	var sawSummary bool
	d, fc := testDeps(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "Condense the following source material") {
			return "A dense summary of the firm's triage work.", nil
		}
		if strings.Contains(prompt, "A dense summary of the firm's triage work.") {
			sawSummary = true
		}
		return titlesJSON("Problem", 10), nil
	})

	payload := basePayload()
	payload.BrainContent = []domain.ContextBlob{
		{SourceType: domain.SourceText, ExtractedText: "Short blurb about the firm.", ExtractionStatus: domain.ExtractionCompleted},
		{SourceType: domain.SourceText, ExtractedText: long, ExtractionStatus: domain.ExtractionCompleted},
		{SourceType: domain.SourceURL, RawValue: "https://x", ExtractionStatus: domain.ExtractionPending},
	}
	store := graph.NewStore(uuid.New())
	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("step: %v", err)
	}

	// One summarize call plus one titles call; the pending blob never reaches
	// the prompt.
	if fc.callCount() != 2 {
		t.Fatalf("calls = %d", fc.callCount())
	}
	if !sawSummary {
		t.Fatalf("summary text missing from titles prompt")
	}
}

func selectProblems(t *testing.T, store *graph.Store, count int) []domain.Suggestion {
	t.Helper()
	probs := store.Suggestions(graph.NodeProblemSuggestions)
	if len(probs) < count {
		t.Fatalf("need %d problems, have %d", count, len(probs))
	}
	sel := make([]string, count)
	for i := 0; i < count; i++ {
		sel[i] = probs[i].ID.String()
	}
	if _, err := store.ChangeSelection(graph.NodePrimaryProblem, sel[:1]); err != nil {
		t.Fatalf("primary: %v", err)
	}
	if _, err := store.ChangeSelection(graph.NodeSelectedProblems, sel); err != nil {
		t.Fatalf("problems: %v", err)
	}
	return probs
}

func TestSolutionFanOut(t *testing.T) {
	d, fc := testDeps(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "Problem being solved:") {
			return titlesJSON("Solution", 5), nil
		}
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()

	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("problems: %v", err)
	}
	probs := selectProblems(t, store, 5)

	out, err := GenerateSolutionTitles(context.Background(), d, SolutionTitlesInput{Store: store, Payload: payload})
	if err != nil {
		t.Fatalf("solutions: %v", err)
	}
	if len(out.ByProblem) != 5 {
		t.Fatalf("pools = %d", len(out.ByProblem))
	}
	// 1 problems call + 5 per-problem solution calls.
	if fc.callCount() != 6 {
		t.Fatalf("calls = %d", fc.callCount())
	}
	for i := 0; i < 5; i++ {
		if len(store.SolutionSuggestions(probs[i].ID.String())) != 5 {
			t.Fatalf("pool %d not stored", i)
		}
	}
}

func TestPrimaryProblemChangeClearsSolutions(t *testing.T) {
	d, _ := testDeps(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "Problem being solved:") {
			return titlesJSON("Solution", 5), nil
		}
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()

	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("problems: %v", err)
	}
	probs := selectProblems(t, store, 5)
	if _, err := GenerateSolutionTitles(context.Background(), d, SolutionTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("solutions: %v", err)
	}

	if _, err := store.ChangeSelection(graph.NodePrimaryProblem, []string{probs[6].ID.String()}); err != nil {
		t.Fatalf("change primary: %v", err)
	}
	if len(store.SolutionSuggestions(probs[0].ID.String())) != 0 {
		t.Fatalf("solution pool survived primary change")
	}
	if _, err := GenerateSolutionTitles(context.Background(), d, SolutionTitlesInput{Store: store, Payload: payload}); err == nil {
		t.Fatalf("solutions ran without a selected-problem set")
	}

	// Re-selecting repopulates the pools on the next visit.
	selectProblems(t, store, 5)
	if _, err := GenerateSolutionTitles(context.Background(), d, SolutionTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("re-run solutions: %v", err)
	}
	if len(store.SolutionSuggestions(probs[0].ID.String())) != 5 {
		t.Fatalf("pool not repopulated")
	}
}

func TestRegenerateProblemTitlesPreservesSelection(t *testing.T) {
	d, _ := testDeps(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "Do NOT generate any of the following titles") {
			return titlesJSON("Replacement", 10), nil
		}
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()

	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("problems: %v", err)
	}
	probs := selectProblems(t, store, 5)

	out, err := RegenerateProblemTitles(context.Background(), d, RegenerateInput{Store: store, Payload: payload})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(out.Suggestions) != 10 {
		t.Fatalf("merged = %d", len(out.Suggestions))
	}
	// The five selected suggestions lead the merge with their original ids.
	for i := 0; i < 5; i++ {
		if out.Suggestions[i].ID != probs[i].ID {
			t.Fatalf("preserved id remapped at %d", i)
		}
	}
	if got := store.Selection(graph.NodeSelectedProblems); len(got) != 5 {
		t.Fatalf("selection cleared by preserve-path regenerate: %v", got)
	}
	for _, sug := range out.Suggestions[5:] {
		if !strings.HasPrefix(sug.Title, "Replacement") {
			t.Fatalf("free slot not replaced: %q", sug.Title)
		}
	}
}

func TestRegenerateNothingFree(t *testing.T) {
	d, _ := testDeps(t, func(string) (string, error) {
		return titlesJSON("Problem", 5), nil
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()

	if _, err := GenerateProblemTitles(context.Background(), d, ProblemTitlesInput{Store: store, Payload: payload, Count: 5}); err != nil {
		t.Fatalf("problems: %v", err)
	}
	selectProblems(t, store, 5)

	if _, err := RegenerateProblemTitles(context.Background(), d, RegenerateInput{Store: store, Payload: payload}); err != graph.ErrNothingToRegenerate {
		t.Fatalf("err = %v", err)
	}
}

func TestOutlineAndContentFlow(t *testing.T) {
	d, _ := testDeps(t, func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Problem being solved:"):
			return titlesJSON("Solution", 5), nil
		case strings.Contains(prompt, "Draft the outline"):
			return `{"title": "The Fix", "sections": [{"heading": "The pain", "points": ["p1"]}, {"heading": "The fix", "points": ["p2"]}]}`, nil
		case strings.Contains(prompt, "Approved outline"):
			return `{"title": "The Fix", "body": "Full article body.", "keywords": ["helpdesk"]}`, nil
		default:
			return titlesJSON("Problem", 10), nil
		}
	})
	store := graph.NewStore(uuid.New())
	payload := basePayload()
	ctx := context.Background()

	if _, err := GenerateProblemTitles(ctx, d, ProblemTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("problems: %v", err)
	}
	probs := selectProblems(t, store, 5)
	if _, err := GenerateSolutionTitles(ctx, d, SolutionTitlesInput{Store: store, Payload: payload}); err != nil {
		t.Fatalf("solutions: %v", err)
	}

	// Content before outline is a precondition failure.
	if _, err := GenerateContent(ctx, d, ContentInput{Store: store, Payload: payload}); err == nil {
		t.Fatalf("content ran without an outline")
	}
	// Outline before a committed solution too.
	if _, err := GenerateOutline(ctx, d, OutlineInput{Store: store, Payload: payload}); err == nil {
		t.Fatalf("outline ran without a committed solution")
	}

	primaryID := probs[0].ID.String()
	sols := store.SolutionSuggestions(primaryID)
	if err := store.SelectSolution(primaryID, sols[0].ID.String()); err != nil {
		t.Fatalf("select solution: %v", err)
	}

	outlineOut, err := GenerateOutline(ctx, d, OutlineInput{Store: store, Payload: payload})
	if err != nil {
		t.Fatalf("outline: %v", err)
	}
	if len(outlineOut.Outline.Sections) != 2 {
		t.Fatalf("sections = %d", len(outlineOut.Outline.Sections))
	}

	contentOut, err := GenerateContent(ctx, d, ContentInput{Store: store, Payload: payload})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if contentOut.Draft.Body != "Full article body." {
		t.Fatalf("body = %q", contentOut.Draft.Body)
	}
	if _, ok := store.Value(graph.NodeContent).(domain.ContentDraft); !ok {
		t.Fatalf("content not committed to the store")
	}
}

func TestRunDispatchesByKind(t *testing.T) {
	d, fc := testDeps(t, func(string) (string, error) {
		return titlesJSON("Problem", 10), nil
	})
	store := graph.NewStore(uuid.New())
	ctx := context.Background()

	out, err := Run(ctx, d, store, domain.KindProblemTitles, basePayload())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sugOut, ok := out.(SuggestionsOutput)
	if !ok {
		t.Fatalf("out is %T", out)
	}
	if len(sugOut.Suggestions) != 10 || fc.callCount() != 1 {
		t.Fatalf("suggestions=%d calls=%d", len(sugOut.Suggestions), fc.callCount())
	}

	if _, err := Run(ctx, d, store, domain.KindEmail, basePayload()); err == nil {
		t.Fatalf("expected unsupported kind error")
	}
}
