package email

import (
	"strings"

	"github.com/draftforge/draftforge-backend/internal/domain"
)

// composeFallback renders the deterministic template-substitution email. No
// model involvement: placeholders are replaced with known prospect and link
// fields, so the output is fully reproducible.
func composeFallback(tpl domain.EmailTemplate, p domain.Prospect, link domain.ContentLink) domain.EmailResult {
	r := strings.NewReplacer(
		"{{contact_name}}", p.ContactName,
		"{{company_name}}", p.CompanyName,
		"{{job_title}}", p.JobTitle,
		"{{room}}", p.CurrentRoom,
		"{{content_title}}", link.Title,
		"{{content_url}}", link.URL,
	)

	bodyText := r.Replace(tpl.BodyTextTemplate)
	bodyHTML := r.Replace(tpl.BodyHTMLTemplate)
	if strings.TrimSpace(bodyHTML) == "" {
		bodyHTML = textToHTML(bodyText)
	}

	return domain.EmailResult{
		Subject:      r.Replace(tpl.SubjectTemplate),
		BodyHTML:     bodyHTML,
		BodyText:     bodyText,
		SelectedURL:  link,
		UsedFallback: true,
	}
}

// textToHTML wraps plain-text paragraphs in <p> tags.
func textToHTML(text string) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	var b strings.Builder
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
