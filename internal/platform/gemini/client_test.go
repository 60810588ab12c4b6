package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

func successBody(text string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     promptTokens,
			"candidatesTokenCount": completionTokens,
			"totalTokenCount":      promptTokens + completionTokens,
		},
	}
}

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BASE_URL", srv.URL)
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash")
	t.Setenv("GEMINI_RETRY_BACKOFF_MS", "1")

	c, err := NewClient(logger.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateSuccessAndCost(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing key param")
		}
		_ = json.NewEncoder(w).Encode(successBody("hello", 1000, 2000))
	}))

	res, err := c.Generate(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("text = %q", res.Text)
	}
	// 1000/1000*0.00010 + 2000/1000*0.00040
	if res.CostUSD != 0.0009 {
		t.Fatalf("cost = %v", res.CostUSD)
	}
	if res.Usage.TotalTokens != 3000 {
		t.Fatalf("total tokens = %d", res.Usage.TotalTokens)
	}
}

func TestModelNotFoundRetriesFallbackOnce(t *testing.T) {
	var primaryCalls, fallbackCalls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gemini-2.0-flash") {
			primaryCalls++
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			return
		}
		fallbackCalls++
		_ = json.NewEncoder(w).Encode(successBody("from fallback", 10, 10))
	}))

	res, err := c.Generate(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "from fallback" || res.Model != "gemini-1.5-flash" {
		t.Fatalf("unexpected result %+v", res)
	}
	if primaryCalls != 1 || fallbackCalls != 1 {
		t.Fatalf("calls primary=%d fallback=%d", primaryCalls, fallbackCalls)
	}
}

func TestFallbackFailureSurfacesFallbackError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gemini-2.0-flash") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"backend exploded"}}`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != ErrServer {
		t.Fatalf("kind = %s, want server_error from fallback", e.Kind)
	}
	if e.Model != "gemini-1.5-flash" {
		t.Fatalf("error model = %s, want fallback model", e.Model)
	}
}

func TestFallbackNotRetriedAgain(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want exactly primary + fallback", calls)
	}
}

func TestTransientServerErrorRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"backend hiccup"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(successBody("recovered", 10, 10))
	}))

	res, err := c.Generate(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "recovered" {
		t.Fatalf("text = %q", res.Text)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want one retry after the 500", calls)
	}
}

func TestTransientRetriesAreBounded(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"still down"}}`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrServer {
		t.Fatalf("kind = %s", KindOf(err))
	}
	// Initial attempt plus the default retry budget, no fallback switch.
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRateLimitedNotRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrRateLimited {
		t.Fatalf("kind = %s", KindOf(err))
	}
	if calls != 1 {
		t.Fatalf("calls = %d, rate limiting must not be retried", calls)
	}
}

func TestRateLimitedClassification(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrRateLimited {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestSafetyBlocked(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{}}, "finishReason": "SAFETY"},
			},
		})
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrSafetyBlocked {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestPromptBlocked(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"promptFeedback": map[string]any{"blockReason": "SAFETY"},
		})
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrPromptBlocked {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestMalformedEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))

	_, err := c.Generate(context.Background(), "hi", Options{})
	if KindOf(err) != ErrUnexpectedResponse {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestMissingKeyIsNotConfigured(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewClient(logger.NewNop())
	if KindOf(err) != ErrNotConfigured {
		t.Fatalf("kind = %s", KindOf(err))
	}
}

func TestCostRounding(t *testing.T) {
	table := PricingTable{"m": {InputPer1K: 0.0000013, OutputPer1K: 0.0000017}}
	got := table.Cost("m", Usage{PromptTokens: 100, CompletionTokens: 100})
	// Raw value 0.0000003 rounds to 6 decimals.
	if got != 0 {
		t.Fatalf("cost = %v", got)
	}
	got = table.Cost("m", Usage{PromptTokens: 1000000, CompletionTokens: 0})
	if got != 0.0013 {
		t.Fatalf("cost = %v", got)
	}
}
