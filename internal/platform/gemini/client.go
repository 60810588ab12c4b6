package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/draftforge/draftforge-backend/internal/observability"
	"github.com/draftforge/draftforge-backend/internal/platform/httpx"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

// Client issues generateContent calls. It performs no caching and no rate
// limiting; those live in the pipeline layers above it.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (Result, error)
}

// Options tunes one generation call. Zero values fall back to client defaults.
type Options struct {
	Model            string
	Temperature      float64
	MaxOutputTokens  int
	TopP             float64
	TopK             int
	Timeout          time.Duration
	ResponseMIMEType string
}

// Usage is the token accounting reported by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful generation.
type Result struct {
	Text    string
	Model   string
	Usage   Usage
	CostUSD float64
}

type client struct {
	log           *logger.Logger
	baseURL       string
	apiKey        string
	model         string
	fallbackModel string
	timeout       time.Duration
	maxRetries    int
	retryBackoff  time.Duration
	httpClient    *http.Client
	pricing       PricingTable
}

// NewClient builds a client from env. A missing GEMINI_API_KEY is surfaced as
// a not_configured error so callers can show the manual-entry affordance.
func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "missing GEMINI_API_KEY"}
	}

	baseURL := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if model == "" {
		model = "gemini-2.0-flash"
	}
	fallback := strings.TrimSpace(os.Getenv("GEMINI_FALLBACK_MODEL"))
	if fallback == "" {
		fallback = "gemini-1.5-flash"
	}

	timeoutSec := 45
	if v := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := strings.TrimSpace(os.Getenv("GEMINI_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}
	backoffMS := 500
	if v := strings.TrimSpace(os.Getenv("GEMINI_RETRY_BACKOFF_MS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			backoffMS = parsed
		}
	}

	pricing := DefaultPricing()
	if path := strings.TrimSpace(os.Getenv("GEMINI_PRICING_FILE")); path != "" {
		loaded, err := LoadPricing(path)
		if err != nil {
			log.Warn("Pricing file unreadable, using defaults", "path", path, "error", err.Error())
		} else {
			pricing = loaded
		}
	}

	return &client{
		log:           log.With("service", "GeminiClient"),
		baseURL:       baseURL,
		apiKey:        apiKey,
		model:         model,
		fallbackModel: fallback,
		timeout:       time.Duration(timeoutSec) * time.Second,
		maxRetries:    maxRetries,
		retryBackoff:  time.Duration(backoffMS) * time.Millisecond,
		httpClient:    &http.Client{},
		pricing:       pricing,
	}, nil
}

type disabledClient struct {
	err error
}

func (d disabledClient) Generate(context.Context, string, Options) (Result, error) {
	return Result{}, d.err
}

// Disabled returns a Client whose every call fails with err. Used when the
// credential is absent so the rest of the wiring stays uniform.
func Disabled(err error) Client {
	if err == nil {
		err = &Error{Kind: ErrNotConfigured, Message: "generation client disabled"}
	}
	return disabledClient{err: err}
}

// ---- wire types ----

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	TopP             float64 `json:"topP,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

func defaultSafetySettings() []safetySetting {
	threshold := "BLOCK_MEDIUM_AND_ABOVE"
	return []safetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: threshold},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: threshold},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: threshold},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: threshold},
	}
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate issues the call, retrying transient upstream failures against the
// same model up to maxRetries times. On a model-not-found response it then
// switches exactly once to the fixed fallback model; the substitution is
// never repeated, and the fallback's error (not the original) is what
// surfaces.
func (c *client) Generate(ctx context.Context, prompt string, opts Options) (Result, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.model
	}

	res, err := c.generateOnce(ctx, prompt, model, opts)
	for attempt := 1; err != nil && attempt <= c.maxRetries && transient(err); attempt++ {
		c.log.Warn("Transient generation failure, retrying",
			"model", model,
			"attempt", attempt,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return Result{}, &Error{Kind: ErrTimeout, Message: ctx.Err().Error(), Model: model}
		case <-time.After(httpx.JitterSleep(c.retryBackoff)):
		}
		res, err = c.generateOnce(ctx, prompt, model, opts)
	}
	if err == nil {
		return res, nil
	}
	if KindOf(err) != ErrModelNotFound || model == c.fallbackModel {
		return Result{}, err
	}

	c.log.Warn("Model unavailable, retrying with fallback model",
		"model", model,
		"fallback_model", c.fallbackModel,
	)
	return c.generateOnce(ctx, prompt, c.fallbackModel, opts)
}

// transient reports whether err is worth another attempt against the same
// model. Rate limiting is excluded; that budget belongs to the limiter above
// this client.
func transient(err error) bool {
	if KindOf(err) == ErrRateLimited {
		return false
	}
	return httpx.IsRetryableError(err)
}

func (c *client) generateOnce(ctx context.Context, prompt string, model string, opts Options) (Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	body := generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			MaxOutputTokens:  maxTokens,
			TopP:             opts.TopP,
			TopK:             opts.TopK,
			ResponseMIMEType: opts.ResponseMIMEType,
		},
		SafetySettings: defaultSafetySettings(),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, &Error{Kind: ErrUnexpectedResponse, Message: err.Error(), Model: model}
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return Result{}, &Error{Kind: ErrConnection, Message: err.Error(), Model: model}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := ErrConnection
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		c.observe(model, string(kind), time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: kind, Message: err.Error(), Model: model}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		c.observe(model, "read_error", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrConnection, Message: readErr.Error(), Model: model}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.classifyHTTP(resp.StatusCode, raw, model)
		c.observe(model, strconv.Itoa(resp.StatusCode), time.Since(start), Usage{}, 0)
		return Result{}, err
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.observe(model, "decode_error", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrUnexpectedResponse, Message: "malformed envelope: " + err.Error(), Model: model, StatusCode: resp.StatusCode}
	}

	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		c.observe(model, "prompt_blocked", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrPromptBlocked, Message: "prompt blocked: " + decoded.PromptFeedback.BlockReason, Model: model}
	}
	if len(decoded.Candidates) == 0 {
		c.observe(model, "empty", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrUnexpectedResponse, Message: "no candidates in response", Model: model}
	}

	cand := decoded.Candidates[0]
	if strings.EqualFold(cand.FinishReason, "SAFETY") {
		c.observe(model, "safety_blocked", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrSafetyBlocked, Message: "candidate blocked on safety grounds", Model: model}
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		c.observe(model, "empty", time.Since(start), Usage{}, 0)
		return Result{}, &Error{Kind: ErrUnexpectedResponse, Message: "candidate carried no text", Model: model}
	}

	usage := Usage{
		PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
		CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
	}
	cost := c.pricing.Cost(model, usage)
	c.observe(model, strconv.Itoa(resp.StatusCode), time.Since(start), usage, cost)

	return Result{
		Text:    text.String(),
		Model:   model,
		Usage:   usage,
		CostUSD: cost,
	}, nil
}

func (c *client) classifyHTTP(status int, raw []byte, model string) *Error {
	msg := errorMessageFromBody(raw)
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: ErrModelNotFound, Message: msg, StatusCode: status, Model: model}
	case status == http.StatusBadRequest && mentionsUnknownModel(msg):
		return &Error{Kind: ErrModelNotFound, Message: msg, StatusCode: status, Model: model}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: ErrRateLimited, Message: msg, StatusCode: status, Model: model}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: ErrNotConfigured, Message: msg, StatusCode: status, Model: model}
	case status >= 500:
		return &Error{Kind: ErrServer, Message: msg, StatusCode: status, Model: model}
	default:
		return &Error{Kind: ErrUnexpectedResponse, Message: msg, StatusCode: status, Model: model}
	}
}

func errorMessageFromBody(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 400 {
		s = s[:400]
	}
	return s
}

// mentionsUnknownModel sniffs 400 bodies for model-availability complaints so
// the fallback substitution also covers endpoints that refuse rather than 404.
func mentionsUnknownModel(msg string) bool {
	m := strings.ToLower(msg)
	if !strings.Contains(m, "model") {
		return false
	}
	return strings.Contains(m, "not found") ||
		strings.Contains(m, "not supported") ||
		strings.Contains(m, "does not exist") ||
		strings.Contains(m, "unsupported")
}

func (c *client) observe(model, status string, dur time.Duration, usage Usage, cost float64) {
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest(model, status, dur, usage.PromptTokens, usage.CompletionTokens, cost)
	}
}

// RoundCost rounds a dollar amount to 6 decimal places.
func RoundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
