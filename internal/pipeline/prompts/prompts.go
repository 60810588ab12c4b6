package prompts

import (
	"fmt"
	"strings"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

func init() { RegisterAll() }

func requireServiceArea(in Input) error {
	if strings.TrimSpace(in.ServiceAreaName) == "" {
		return fmt.Errorf("missing service area name")
	}
	return nil
}

func requireProblem(in Input) error {
	if strings.TrimSpace(in.ProblemTitle) == "" {
		return fmt.Errorf("missing problem title")
	}
	return nil
}

// RegisterAll installs every prompt spec. Safe to call more than once.
func RegisterAll() {
	RegisterSpec(Spec{
		Kind:    domain.KindProblemTitles,
		Version: 3,
		Body: `You are a senior content strategist for a B2B services firm.
Your specialty is naming the concrete operational problems a service area solves for its buyers.

Service area: {{.ServiceAreaName}}
{{if .Industries}}Target industries:
{{bulleted .Industries}}
{{end}}
{{if .ContextBlocks}}Background material about this firm:
{{range .ContextBlocks}}---
{{.}}
{{end}}{{end}}
{{if .AssetBlocks}}Existing published assets (avoid overlapping with these):
{{range .AssetBlocks}}---
{{.}}
{{end}}{{end}}
Generate {{.Count}} distinct problem statements buyers in these industries actually experience.
Each title must name a specific, costly pain in plain language a practitioner would use. No generic platitudes.`,
		Schema: `Respond with a JSON array of exactly the requested number of objects, no prose before or after:
[{"title": "<problem statement, 10-200 characters>", "rationale": "<one sentence on why this resonates>"}]`,
		Validators: []Validator{requireServiceArea},
	})

	RegisterSpec(Spec{
		Kind:    domain.KindSolutionTitles,
		Version: 3,
		Body: `You are a senior content strategist for a B2B services firm.
You turn a named buyer problem into compelling solution-content titles.

Service area: {{.ServiceAreaName}}
Problem being solved: {{.ProblemTitle}}
{{if .PrimaryProblem}}Primary problem of the whole campaign: {{.PrimaryProblem}}
{{end}}{{if .Industries}}Target industries:
{{bulleted .Industries}}
{{end}}
{{if .ContextBlocks}}Background material:
{{range .ContextBlocks}}---
{{.}}
{{end}}{{end}}
Generate {{.Count}} solution-oriented content titles for this problem.
Each title must promise a specific outcome and name the mechanism or device that delivers it.`,
		Schema: `Respond with a JSON array only, no prose:
[{"title": "<solution title, 10-200 characters>", "angle": "<the persuasion angle>", "device": "<the content device, e.g. checklist, teardown, case study>"}]`,
		Validators: []Validator{requireServiceArea, requireProblem},
	})

	RegisterSpec(Spec{
		Kind:    domain.KindOutline,
		Version: 2,
		Body: `You are an expert long-form content editor.
Draft the outline for a piece of content.

Service area: {{.ServiceAreaName}}
Problem: {{.ProblemTitle}}
Solution title: {{.SolutionTitle}}
{{if .Industries}}Audience industries:
{{bulleted .Industries}}
{{end}}
{{if .ContextBlocks}}Source material to draw from:
{{range .ContextBlocks}}---
{{.}}
{{end}}{{end}}
Produce a complete outline: an opening hook, 4-7 body sections that walk from the pain to the resolution, and a closing call to action.`,
		Schema: `Respond with a single JSON object only:
{"title": "<final title>", "sections": [{"heading": "<section heading>", "points": ["<talking point>", "..."]}]}`,
		Validators: []Validator{requireServiceArea, requireProblem},
	})

	RegisterSpec(Spec{
		Kind:    domain.KindContent,
		Version: 2,
		Body: `You are an expert B2B content writer. Write the full piece from its approved outline.

Service area: {{.ServiceAreaName}}
Problem: {{.ProblemTitle}}
Solution title: {{.SolutionTitle}}
Approved outline (JSON):
{{.OutlineJSON}}
{{if .ContextBlocks}}Source material:
{{range .ContextBlocks}}---
{{.}}
{{end}}{{end}}
Write in a direct, practitioner-to-practitioner voice. Every section of the outline must appear in the body. 900-1400 words.`,
		Schema: `Respond with a single JSON object only:
{"title": "<final title>", "body": "<the full article text with \n\n between paragraphs>", "keywords": ["<seo keyword>", "..."]}`,
		Validators: []Validator{requireServiceArea, requireProblem},
	})

	RegisterSpec(Spec{
		Kind:    domain.KindSummarizeContext,
		Version: 1,
		Body: `You are a research assistant. Condense the following source material into a dense factual summary that preserves every concrete detail useful for marketing content: named services, industries, differentiators, numbers, client types.

Source material:
{{.RawText}}

Keep the summary under 300 words. No commentary about the summarization itself.`,
		Schema: `Respond with the summary as plain text only.`,
	})

	RegisterSpec(Spec{
		Kind:    domain.KindEmail,
		Version: 2,
		Body: `{{.Persona}}

Style guide:
{{.Style}}

Output requirements:
{{.Output}}

Personalization rules:
{{.Personalization}}

Hard constraints:
{{.Constraints}}
{{if .Examples}}
Examples of the desired voice:
{{.Examples}}
{{end}}{{if .Context}}
Additional context:
{{.Context}}
{{end}}
Recipient engagement summary:
{{.RecipientSummary}}

Content links not yet sent to this recipient (pick exactly one by its number):
{{range .ContentLinks}}{{.Index}}. {{.Title}} - {{.URL}}{{if .Summary}} ({{.Summary}}){{end}}
{{end}}`,
		Schema: `Respond with a single JSON object only:
{"subject": "<email subject>", "body_html": "<html body>", "body_text": "<plain text body>", "selected_url_index": <1-based number of the chosen link>, "reasoning": "<why this link>"}`,
	})
}
