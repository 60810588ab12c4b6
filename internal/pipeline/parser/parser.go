package parser

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

// Title bounds for a plausible generated title.
const (
	MinTitleLen = 10
	MaxTitleLen = 200
)

// rawPreviewLen bounds the diagnostic preview attached to parse errors.
const rawPreviewLen = 400

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseError is surfaced when every recovery strategy fails. It always
// carries a truncated preview of the raw model text; callers must surface it
// rather than substitute an empty result.
type ParseError struct {
	Kind    domain.GenerationKind
	Reason  string
	Preview string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse_error (%s): %s; raw preview: %s", e.Kind, e.Reason, e.Preview)
}

func newParseError(kind domain.GenerationKind, reason, raw string) *ParseError {
	preview := strings.TrimSpace(raw)
	if len(preview) > rawPreviewLen {
		preview = preview[:rawPreviewLen]
	}
	return &ParseError{Kind: kind, Reason: reason, Preview: preview}
}

// ---- structural decode strategies ----

// decodeAny runs the structural strategy chain: direct decode, fence-strip,
// balanced-fragment extraction, then jsonrepair. The first decodable payload
// wins; a nil return means nothing in the text decodes.
func decodeAny(raw string) any {
	candidates := []string{
		raw,
		stripFences(raw),
		extractBalanced(stripFences(raw)),
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		var v any
		if err := json.UnmarshalFromString(c, &v); err == nil && v != nil {
			return v
		}
	}
	// Last structural resort: repair the most promising fragment.
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		repaired, err := jsonrepair.JSONRepair(c)
		if err != nil {
			continue
		}
		var v any
		if err := json.UnmarshalFromString(repaired, &v); err == nil && v != nil {
			return v
		}
	}
	return nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// stripFences returns the content of the first markdown code fence, or the
// input with any stray fence markers removed.
func stripFences(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	return strings.ReplaceAll(raw, "```", "")
}

// extractBalanced finds the first balanced {...} or [...] substring, tracking
// strings and escapes so braces inside values don't end the scan early.
func extractBalanced(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	open := raw[start]
	var close byte
	if open == '{' {
		close = '}'
	} else {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// ---- suggestions ----

// ParseSuggestions recovers a list of suggestions from raw model text using
// the ordered strategy chain, then sanitizes every candidate. It fails with a
// ParseError only when all strategies produce zero valid items.
func ParseSuggestions(raw string, kind domain.GenerationKind) ([]domain.Suggestion, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newParseError(kind, "empty response text", raw)
	}

	var candidates []domain.Suggestion
	if v := decodeAny(raw); v != nil {
		candidates = normalizeSuggestions(v)
	}
	if len(candidates) == 0 {
		candidates = lineHeuristic(raw)
	}

	out := Sanitize(candidates)
	if len(out) == 0 {
		return nil, newParseError(kind, "no valid items after all strategies", raw)
	}
	return out, nil
}

// normalizeSuggestions accepts every wire shape the model has been seen to
// produce: an array of strings, an array of objects, or an object wrapping
// either under a plural key. Everything collapses to the one canonical type.
func normalizeSuggestions(v any) []domain.Suggestion {
	switch t := v.(type) {
	case []any:
		out := make([]domain.Suggestion, 0, len(t))
		for _, item := range t {
			if s, ok := normalizeOne(item); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		for _, key := range []string{"titles", "suggestions", "problems", "solutions", "items", "results"} {
			if inner, ok := t[key]; ok {
				if list := normalizeSuggestions(inner); len(list) > 0 {
					return list
				}
			}
		}
		// A single bare object is a one-item list.
		if s, ok := normalizeOne(t); ok {
			return []domain.Suggestion{s}
		}
	}
	return nil
}

func normalizeOne(item any) (domain.Suggestion, bool) {
	switch t := item.(type) {
	case string:
		return domain.Suggestion{Title: t}, strings.TrimSpace(t) != ""
	case map[string]any:
		title := stringField(t, "title")
		if title == "" {
			title = stringField(t, "name")
		}
		if title == "" {
			return domain.Suggestion{}, false
		}
		return domain.Suggestion{
			Title:     title,
			Angle:     stringField(t, "angle"),
			Device:    stringField(t, "device"),
			Rationale: stringField(t, "rationale"),
		}, true
	}
	return domain.Suggestion{}, false
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)\]:]?)\s*`)

// lineHeuristic is the last strategy: split into lines, strip numbering and
// bullet markers, keep lines inside the plausible title length range.
func lineHeuristic(raw string) []domain.Suggestion {
	var out []domain.Suggestion
	for _, line := range strings.Split(raw, "\n") {
		line = bulletRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, domain.Suggestion{Title: line})
	}
	return out
}

// ---- sanitizer ----

var danglingKeyRe = regexp.MustCompile(`^\s*"?\w+"\s*:`)

// IsJSONFragment reports whether a candidate title is debris from a broken
// JSON decode rather than real text: a dangling key pattern or something that
// still starts with a structural character.
func IsJSONFragment(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return true
	}
	return danglingKeyRe.MatchString(trimmed)
}

// CleanTitle trims whitespace and symmetric quoting plus trailing commas left
// over from JSON lines.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ",")
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

// Sanitize cleans every candidate, drops JSON artifacts and out-of-bounds
// titles, dedupes by exact match, and assigns ids to the survivors.
func Sanitize(candidates []domain.Suggestion) []domain.Suggestion {
	seen := map[string]bool{}
	out := make([]domain.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		title := CleanTitle(c.Title)
		if IsJSONFragment(title) {
			continue
		}
		if len(title) < MinTitleLen || len(title) > MaxTitleLen {
			continue
		}
		if seen[title] {
			continue
		}
		seen[title] = true
		c.Title = title
		c.ID = newSuggestionID()
		out = append(out, c)
	}
	return out
}

// ---- structured content ----

// ParseOutline recovers a structured outline.
func ParseOutline(raw string) (domain.Outline, error) {
	v := decodeAny(raw)
	if v == nil {
		return domain.Outline{}, newParseError(domain.KindOutline, "no decodable JSON object", raw)
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return domain.Outline{}, newParseError(domain.KindOutline, err.Error(), raw)
	}
	var outline domain.Outline
	if err := json.Unmarshal(blob, &outline); err != nil {
		return domain.Outline{}, newParseError(domain.KindOutline, "decoded JSON does not match outline schema", raw)
	}
	outline.Title = CleanTitle(outline.Title)
	if outline.Title == "" || len(outline.Sections) == 0 {
		return domain.Outline{}, newParseError(domain.KindOutline, "outline missing title or sections", raw)
	}
	return outline, nil
}

// ParseContent recovers a final content draft.
func ParseContent(raw string) (domain.ContentDraft, error) {
	v := decodeAny(raw)
	if v == nil {
		return domain.ContentDraft{}, newParseError(domain.KindContent, "no decodable JSON object", raw)
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return domain.ContentDraft{}, newParseError(domain.KindContent, err.Error(), raw)
	}
	var draft domain.ContentDraft
	if err := json.Unmarshal(blob, &draft); err != nil {
		return domain.ContentDraft{}, newParseError(domain.KindContent, "decoded JSON does not match content schema", raw)
	}
	draft.Title = CleanTitle(draft.Title)
	if draft.Title == "" || strings.TrimSpace(draft.Body) == "" {
		return domain.ContentDraft{}, newParseError(domain.KindContent, "content missing title or body", raw)
	}
	return draft, nil
}

// EmailReply is the model's email response contract.
type EmailReply struct {
	Subject          string `json:"subject"`
	BodyHTML         string `json:"body_html"`
	BodyText         string `json:"body_text"`
	SelectedURLIndex int    `json:"selected_url_index"`
	Reasoning        string `json:"reasoning,omitempty"`
}

// ParseEmail recovers the email reply, requiring subject, both bodies, and a
// positive 1-based link index. Range checking against the actual link list is
// the orchestrator's job.
func ParseEmail(raw string) (EmailReply, error) {
	v := decodeAny(raw)
	if v == nil {
		return EmailReply{}, newParseError(domain.KindEmail, "no decodable JSON object", raw)
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return EmailReply{}, newParseError(domain.KindEmail, err.Error(), raw)
	}
	var reply EmailReply
	if err := json.Unmarshal(blob, &reply); err != nil {
		return EmailReply{}, newParseError(domain.KindEmail, "decoded JSON does not match email schema", raw)
	}
	if strings.TrimSpace(reply.Subject) == "" ||
		strings.TrimSpace(reply.BodyHTML) == "" ||
		strings.TrimSpace(reply.BodyText) == "" ||
		reply.SelectedURLIndex < 1 {
		return EmailReply{}, newParseError(domain.KindEmail, "email reply missing required fields", raw)
	}
	return reply, nil
}
