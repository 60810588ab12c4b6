package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// SourceType is where a context blob originally came from.
type SourceType string

const (
	SourceURL  SourceType = "url"
	SourceText SourceType = "text"
	SourceFile SourceType = "file"
)

// ExtractionStatus tracks the external extractor's progress on a blob.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// ContextBlob is a unit of source material produced by the external extractor.
// Immutable once ExtractionStatus is completed; the pipeline only reads it.
type ContextBlob struct {
	SourceType       SourceType       `json:"source_type"`
	RawValue         string           `json:"raw_value"`
	ExtractedText    string           `json:"extracted_text"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
}

// Usable reports whether the blob carries text the prompt builder can embed.
func (b ContextBlob) Usable() bool {
	return b.ExtractionStatus == ExtractionCompleted && strings.TrimSpace(b.ExtractedText) != ""
}

// GenerationKind names one pipeline generation step.
type GenerationKind string

const (
	KindProblemTitles    GenerationKind = "problem_titles"
	KindSolutionTitles   GenerationKind = "solution_titles"
	KindOutline          GenerationKind = "outline"
	KindContent          GenerationKind = "content"
	KindSummarizeContext GenerationKind = "summarize_context"
	KindEmail            GenerationKind = "email_personalized"
)

// GenerationRequest is built fresh for every step invocation and never mutated.
type GenerationRequest struct {
	Kind         GenerationKind `json:"kind"`
	Inputs       map[string]any `json:"inputs"`
	Exclusions   []string       `json:"exclusions,omitempty"`
	FocusAngle   string         `json:"focus_angle,omitempty"`
	ForceRefresh bool           `json:"force_refresh"`
}

// Suggestion is one generated candidate title for a pipeline node. The model
// may return it as a bare string or as an object with extra fields; the parser
// normalizes both wire shapes into this one type.
type Suggestion struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Angle     string    `json:"angle,omitempty"`
	Device    string    `json:"device,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
}

// ContentHash is the stable merge identity for a suggestion. Regeneration
// merges are keyed on this rather than positional ids, so a preserved
// selection can never remap to an unrelated suggestion.
func (s Suggestion) ContentHash() string {
	return TitleHash(s.Title)
}

// TitleHash hashes a normalized (lowercased, space-collapsed) title.
func TitleHash(title string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(title))), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// OutlineSection is one section of a generated content outline.
type OutlineSection struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points,omitempty"`
}

// Outline is the structured outline for a selected problem/solution pair.
type Outline struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

// ContentDraft is a final generated content artifact.
type ContentDraft struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Keywords []string `json:"keywords,omitempty"`
}

// StepPayload is the caller-facing input to a pipeline generation step.
type StepPayload struct {
	ServiceAreaName string        `json:"service_area_name"`
	Industries      []string      `json:"industries"`
	BrainContent    []ContextBlob `json:"brain_content"`
	ExistingAssets  []ContextBlob `json:"existing_assets"`
	PreviousTitles  []string      `json:"previous_titles,omitempty"`
	ExcludeTitles   []string      `json:"exclude_titles,omitempty"`
	FocusAngle      string        `json:"focus_angle,omitempty"`
	ForceRefresh    bool          `json:"force_refresh"`
}
