package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, opts gemini.Options) (gemini.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return gemini.Result{}, f.err
	}
	return gemini.Result{Text: f.text, Model: "fake-model", CostUSD: 0.0005}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testTemplate() domain.EmailTemplate {
	return domain.EmailTemplate{
		ID:               uuid.New(),
		Name:             "default",
		Persona:          "You are a helpful account manager writing a short follow-up email.",
		Style:            "Warm, concise, no jargon.",
		Output:           "One short email.",
		Personalization:  "Reference the recipient's company by name.",
		Constraints:      "Under 120 words.",
		SubjectTemplate:  "A resource for {{company_name}}",
		BodyTextTemplate: "Hi {{contact_name}},\n\nThought you might find this useful: {{content_title}}\n{{content_url}}\n\nBest",
	}
}

func testProspect() domain.Prospect {
	return domain.Prospect{
		ID:          uuid.New(),
		Email:       "jordan@acme.test",
		CompanyName: "Acme Clinics",
		ContactName: "Jordan",
		JobTitle:    "Ops Lead",
		CurrentRoom: "evaluation",
		LeadScore:   72,
		DaysInRoom:  4,
	}
}

func testLinks() []domain.ContentLink {
	return []domain.ContentLink{
		{ID: uuid.New(), Title: "Guide A", URL: "a"},
		{ID: uuid.New(), Title: "Guide B", URL: "b"},
	}
}

func newService(t *testing.T, client gemini.Client, enabled bool) *Service {
	t.Helper()
	s, err := NewService(
		logger.NewNop(),
		client,
		ratelimit.NewWindow(100, time.Minute),
		StaticTemplates{testTemplate()},
		enabled,
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func TestDisabledUsesFallbackWithFirstUnsentLink(t *testing.T) {
	fc := &fakeClient{}
	s := newService(t, fc, false)

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		URLsSent: []string{"a"},
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.UsedFallback {
		t.Fatalf("expected fallback result")
	}
	if res.SelectedURL.URL != "b" {
		t.Fatalf("selected url = %q", res.SelectedURL.URL)
	}
	if fc.callCount() != 0 {
		t.Fatalf("client called while disabled")
	}
	if res.Subject != "A resource for Acme Clinics" {
		t.Fatalf("subject = %q", res.Subject)
	}
	if res.BodyText == "" || res.BodyHTML == "" {
		t.Fatalf("fallback bodies incomplete: %+v", res)
	}
}

func TestGenerationSuccessUsesSelectedIndex(t *testing.T) {
	fc := &fakeClient{text: `{"subject": "Quick one for Acme", "body_html": "<p>Hi</p>", "body_text": "Hi", "selected_url_index": 2, "reasoning": "they viewed pricing"}`}
	s := newService(t, fc, true)

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.UsedFallback {
		t.Fatalf("unexpected fallback")
	}
	if res.SelectedURL.URL != "b" {
		t.Fatalf("selected url = %q", res.SelectedURL.URL)
	}
	if res.Model != "fake-model" || res.CostUSD != 0.0005 {
		t.Fatalf("accounting missing: %+v", res)
	}
}

func TestOutOfRangeIndexDefaultsToFirstLink(t *testing.T) {
	fc := &fakeClient{text: `{"subject": "s", "body_html": "<p>h</p>", "body_text": "t", "selected_url_index": 9}`}
	s := newService(t, fc, true)

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.UsedFallback {
		t.Fatalf("out-of-range index must not force the fallback path")
	}
	if res.SelectedURL.URL != "a" {
		t.Fatalf("selected url = %q", res.SelectedURL.URL)
	}
}

func TestClientErrorFallsBack(t *testing.T) {
	fc := &fakeClient{err: &gemini.Error{Kind: gemini.ErrServer, Message: "boom", StatusCode: 500}}
	s := newService(t, fc, true)

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.UsedFallback {
		t.Fatalf("expected fallback after client error")
	}
	if res.SelectedURL.URL != "a" {
		t.Fatalf("selected url = %q", res.SelectedURL.URL)
	}
}

func TestMalformedReplyFallsBack(t *testing.T) {
	fc := &fakeClient{text: "sure, here is your email!"}
	s := newService(t, fc, true)

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.UsedFallback {
		t.Fatalf("expected fallback after parse failure")
	}
}

func TestRateLimitedFallsBack(t *testing.T) {
	fc := &fakeClient{text: `{"subject": "s", "body_html": "h", "body_text": "t", "selected_url_index": 1}`}
	s, err := NewService(
		logger.NewNop(),
		fc,
		ratelimit.NewWindow(0, time.Minute),
		StaticTemplates{testTemplate()},
		true,
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.UsedFallback {
		t.Fatalf("expected fallback when rate limited")
	}
	if fc.callCount() != 0 {
		t.Fatalf("client called past an exhausted limiter")
	}
}

func TestNoTemplatesSurfaces(t *testing.T) {
	s, err := NewService(logger.NewNop(), &fakeClient{}, ratelimit.NewWindow(10, time.Minute), StaticTemplates{}, true)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_, err = s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if !errors.Is(err, ErrNoTemplates) {
		t.Fatalf("err = %v", err)
	}
}

func TestAllLinksSentReusesList(t *testing.T) {
	s := newService(t, &fakeClient{}, false)
	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		URLsSent: []string{"a", "b"},
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.SelectedURL.URL != "a" {
		t.Fatalf("selected url = %q", res.SelectedURL.URL)
	}
}

func TestRoomTemplatePreferred(t *testing.T) {
	roomTpl := testTemplate()
	roomTpl.Room = "evaluation"
	roomTpl.SubjectTemplate = "Evaluation notes for {{company_name}}"
	src := StaticTemplates{testTemplate(), roomTpl}

	s, err := NewService(logger.NewNop(), &fakeClient{}, ratelimit.NewWindow(10, time.Minute), src, false)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	res, err := s.Generate(context.Background(), GenerateInput{
		Prospect: testProspect(),
		Links:    testLinks(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Subject != "Evaluation notes for Acme Clinics" {
		t.Fatalf("subject = %q", res.Subject)
	}
}
