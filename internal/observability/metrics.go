package observability

import (
	"sync"
	"time"
)

// Metrics is a small in-process registry for the LLM call boundary, the only
// observable external surface this backend has.
type Metrics struct {
	mu sync.Mutex

	llmRequests  map[string]int64 // model|status
	llmLatency   map[string]time.Duration
	llmTokensIn  map[string]int64
	llmTokensOut map[string]int64
	llmCostUSD   map[string]float64

	rateLimited int64
	cacheHits   int64
	cacheMisses int64
}

var (
	currentMu sync.RWMutex
	current   *Metrics
)

// Init installs the process-wide metrics registry.
func Init() *Metrics {
	m := &Metrics{
		llmRequests:  map[string]int64{},
		llmLatency:   map[string]time.Duration{},
		llmTokensIn:  map[string]int64{},
		llmTokensOut: map[string]int64{},
		llmCostUSD:   map[string]float64{},
	}
	currentMu.Lock()
	current = m
	currentMu.Unlock()
	return m
}

// Current returns the installed registry, or nil when metrics are off.
func Current() *Metrics {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration, inputTokens, outputTokens int, costUSD float64) {
	if m == nil {
		return
	}
	key := model + "|" + status
	m.mu.Lock()
	m.llmRequests[key]++
	m.llmLatency[key] += dur
	m.llmTokensIn[model] += int64(inputTokens)
	m.llmTokensOut[model] += int64(outputTokens)
	m.llmCostUSD[model] += costUSD
	m.mu.Unlock()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	m.mu.Unlock()
}

// Snapshot returns a flat copy for the debug endpoint.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make(map[string]int64, len(m.llmRequests))
	for k, v := range m.llmRequests {
		requests[k] = v
	}
	cost := make(map[string]float64, len(m.llmCostUSD))
	for k, v := range m.llmCostUSD {
		cost[k] = v
	}
	return map[string]any{
		"llm_requests": requests,
		"llm_cost_usd": cost,
		"rate_limited": m.rateLimited,
		"cache_hits":   m.cacheHits,
		"cache_misses": m.cacheMisses,
	}
}
