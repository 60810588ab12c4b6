package gemini

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelRate is the per-1K-token price pair for one model.
type ModelRate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// PricingTable maps model name to its rates. Unknown models cost zero; usage
// is still accounted so the gap shows up in metrics.
type PricingTable map[string]ModelRate

func DefaultPricing() PricingTable {
	return PricingTable{
		"gemini-2.0-flash": {InputPer1K: 0.00010, OutputPer1K: 0.00040},
		"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.00030},
		"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.00500},
	}
}

// LoadPricing reads a YAML table of model rates.
func LoadPricing(path string) (PricingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table PricingTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// Cost computes (prompt/1000)*inRate + (completion/1000)*outRate rounded to
// 6 decimal places.
func (t PricingTable) Cost(model string, usage Usage) float64 {
	rate, ok := t[strings.TrimSpace(model)]
	if !ok {
		return 0
	}
	cost := float64(usage.PromptTokens)/1000*rate.InputPer1K +
		float64(usage.CompletionTokens)/1000*rate.OutputPer1K
	return RoundCost(cost)
}
