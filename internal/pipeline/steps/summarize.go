package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/cache"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
)

// SummarizeThreshold is the character length above which raw extracted text is
// condensed through a summarize call before being embedded as prompt context.
const SummarizeThreshold = 2000

// ContextBlocks gates blobs for prompt embedding: short usable text passes
// through verbatim, long text goes through the summarizer. Blobs whose
// extraction has not completed are skipped entirely.
func ContextBlocks(ctx context.Context, d Deps, blobs []domain.ContextBlob) ([]string, error) {
	if err := d.check("context summarizer"); err != nil {
		return nil, err
	}
	var out []string
	for _, blob := range blobs {
		if !blob.Usable() {
			continue
		}
		text := strings.TrimSpace(blob.ExtractedText)
		if len(text) <= SummarizeThreshold {
			out = append(out, text)
			continue
		}
		summary, err := summarizeText(ctx, d, text)
		if err != nil {
			return nil, fmt.Errorf("summarize context: %w", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func summarizeText(ctx context.Context, d Deps, text string) (string, error) {
	req := domain.GenerationRequest{
		Kind: domain.KindSummarizeContext,
		Inputs: map[string]any{
			"raw":            text,
			"prompt_version": promptVersionOf(domain.KindSummarizeContext),
		},
	}
	key := cache.Key(req, d.Model)
	v, err := d.Cache.GetOrCompute(key, func() (any, error) {
		raw, err := callModel(ctx, d, req, prompts.Input{RawText: text})
		if err != nil {
			return nil, err
		}
		summary := strings.TrimSpace(raw)
		if summary == "" {
			return nil, fmt.Errorf("empty summary")
		}
		return summary, nil
	}, cache.DefaultTTL)
	if err != nil {
		return "", err
	}
	summary, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected cached value %T", v)
	}
	return summary, nil
}
