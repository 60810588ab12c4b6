package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/parser"
	"github.com/draftforge/draftforge-backend/internal/pipeline/prompts"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

// ErrNoTemplates means no email template exists at all; without one even the
// deterministic fallback cannot compose an email.
var ErrNoTemplates = errors.New("no_templates")

// ErrNoLinks means no content link is available to reference.
var ErrNoLinks = errors.New("no content links available")

// TemplateSource resolves the email template for a prospect's room.
type TemplateSource interface {
	ResolveTemplate(ctx context.Context, room string) (domain.EmailTemplate, bool, error)
}

// StaticTemplates is an in-memory TemplateSource. A template whose Room
// matches wins; otherwise the first room-less template serves as the default.
type StaticTemplates []domain.EmailTemplate

func (s StaticTemplates) ResolveTemplate(_ context.Context, room string) (domain.EmailTemplate, bool, error) {
	var fallback *domain.EmailTemplate
	for i, tpl := range s {
		if tpl.Room != "" && tpl.Room == room {
			return tpl, true, nil
		}
		if tpl.Room == "" && fallback == nil {
			fallback = &s[i]
		}
	}
	if fallback != nil {
		return *fallback, true, nil
	}
	if len(s) > 0 {
		return s[0], true, nil
	}
	return domain.EmailTemplate{}, false, nil
}

// Service is the generation-with-fallback email orchestrator. Every failure
// mode past template resolution (disabled, rate-limited, client error, parse
// error) degrades to the deterministic template email; the recipient always
// gets something sendable.
type Service struct {
	log       *logger.Logger
	client    gemini.Client
	limiter   ratelimit.Limiter
	templates TemplateSource
	enabled   bool
}

func NewService(log *logger.Logger, client gemini.Client, limiter ratelimit.Limiter, templates TemplateSource, enabled bool) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template source required")
	}
	if enabled && (client == nil || limiter == nil) {
		return nil, fmt.Errorf("client and limiter required when generation is enabled")
	}
	return &Service{
		log:       log.With("service", "EmailOrchestrator"),
		client:    client,
		limiter:   limiter,
		templates: templates,
		enabled:   enabled,
	}, nil
}

// GenerateInput is one email request: the recipient, the links already sent
// to them, and the full candidate link list.
type GenerateInput struct {
	Prospect    domain.Prospect
	RecentPages []domain.PageVisit
	URLsSent    []string
	Links       []domain.ContentLink
}

// Generate produces the outbound email for one prospect.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (domain.EmailResult, error) {
	tpl, ok, err := s.templates.ResolveTemplate(ctx, in.Prospect.CurrentRoom)
	if err != nil {
		return domain.EmailResult{}, fmt.Errorf("resolve template: %w", err)
	}
	if !ok {
		return domain.EmailResult{}, ErrNoTemplates
	}

	unsent := unsentLinks(in.Links, in.URLsSent)
	if len(unsent) == 0 {
		// Everything has been sent before; reusing beats sending nothing.
		unsent = in.Links
	}
	if len(unsent) == 0 {
		return domain.EmailResult{}, ErrNoLinks
	}

	if !s.enabled {
		return s.fallback(tpl, in.Prospect, unsent[0], "generation disabled"), nil
	}
	if err := s.limiter.CheckAndReserve(ctx); err != nil {
		return s.fallback(tpl, in.Prospect, unsent[0], err.Error()), nil
	}

	result, err := s.generate(ctx, tpl, in, unsent)
	if err != nil {
		return s.fallback(tpl, in.Prospect, unsent[0], err.Error()), nil
	}
	return result, nil
}

func (s *Service) generate(ctx context.Context, tpl domain.EmailTemplate, in GenerateInput, unsent []domain.ContentLink) (domain.EmailResult, error) {
	pin := prompts.Input{
		Persona:          tpl.Persona,
		Style:            tpl.Style,
		Output:           tpl.Output,
		Personalization:  tpl.Personalization,
		Constraints:      tpl.Constraints,
		Examples:         tpl.Examples,
		Context:          tpl.Context,
		RecipientSummary: recipientSummary(in.Prospect, in.RecentPages),
	}
	for i, link := range unsent {
		pin.ContentLinks = append(pin.ContentLinks, prompts.ContentLinkRef{
			Index:   i + 1,
			Title:   link.Title,
			URL:     link.URL,
			Summary: link.Summary,
		})
	}

	prompt, err := prompts.Build(domain.KindEmail, pin)
	if err != nil {
		return domain.EmailResult{}, err
	}
	res, err := s.client.Generate(ctx, prompt, gemini.Options{
		Temperature:      0.6,
		MaxOutputTokens:  2048,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return domain.EmailResult{}, err
	}
	reply, err := parser.ParseEmail(res.Text)
	if err != nil {
		return domain.EmailResult{}, err
	}

	idx := reply.SelectedURLIndex
	if idx < 1 || idx > len(unsent) {
		s.log.Warn("Model selected out-of-range link index, defaulting to first",
			"index", idx,
			"available", len(unsent),
		)
		idx = 1
	}

	return domain.EmailResult{
		Subject:     reply.Subject,
		BodyHTML:    reply.BodyHTML,
		BodyText:    reply.BodyText,
		SelectedURL: unsent[idx-1],
		Reasoning:   reply.Reasoning,
		Model:       res.Model,
		CostUSD:     res.CostUSD,
	}, nil
}

func (s *Service) fallback(tpl domain.EmailTemplate, p domain.Prospect, link domain.ContentLink, reason string) domain.EmailResult {
	s.log.Info("Composing deterministic fallback email",
		"prospect", p.Email,
		"reason", reason,
	)
	return composeFallback(tpl, p, link)
}

// unsentLinks filters out every link whose URL the prospect already received.
func unsentLinks(links []domain.ContentLink, sent []string) []domain.ContentLink {
	seen := make(map[string]bool, len(sent))
	for _, u := range sent {
		seen[strings.TrimSpace(u)] = true
	}
	var out []domain.ContentLink
	for _, link := range links {
		if !seen[strings.TrimSpace(link.URL)] {
			out = append(out, link)
		}
	}
	return out
}

// recipientSummary condenses the prospect's engagement into the prompt block
// the model personalizes against.
func recipientSummary(p domain.Prospect, pages []domain.PageVisit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", p.CompanyName)
	fmt.Fprintf(&b, "Contact: %s", p.ContactName)
	if p.JobTitle != "" {
		fmt.Fprintf(&b, " (%s)", p.JobTitle)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Room: %s, day %d, lead score %d, email %d in sequence\n",
		p.CurrentRoom, p.DaysInRoom, p.LeadScore, p.EmailSequencePosition)
	if len(pages) > 0 {
		b.WriteString("Recently visited pages:\n")
		for _, v := range pages {
			fmt.Fprintf(&b, "- %s", v.URL)
			if v.Intent != "" {
				fmt.Fprintf(&b, " (intent: %s)", v.Intent)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
