package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PageVisit is one recent page view attributed to a prospect.
type PageVisit struct {
	URL       string    `json:"url"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Prospect is an outbound email recipient.
type Prospect struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"not null;uniqueIndex" json:"email"`
	CompanyName string    `json:"company_name"`
	ContactName string    `json:"contact_name"`
	JobTitle    string    `json:"job_title"`

	CurrentRoom           string `gorm:"index" json:"current_room"`
	LeadScore             int    `json:"lead_score"`
	DaysInRoom            int    `json:"days_in_room"`
	EmailSequencePosition int    `json:"email_sequence_position"`

	RecentPagesJSON datatypes.JSON `gorm:"column:recent_pages_json;type:jsonb" json:"recent_pages_json,omitempty"`
	URLsSentJSON    datatypes.JSON `gorm:"column:urls_sent_json;type:jsonb" json:"urls_sent_json,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// Campaign groups prospects under one email program.
type Campaign struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"not null" json:"name"`
	Enabled bool      `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ContentLink is a shareable content asset an email can point at.
type ContentLink struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title   string    `gorm:"not null" json:"title"`
	URL     string    `gorm:"not null;uniqueIndex" json:"url"`
	Summary string    `json:"summary,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// EmailTemplate is the deterministic fallback template plus the prompt-side
// persona/style/constraint blocks used when generation is available.
type EmailTemplate struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"not null;uniqueIndex" json:"name"`
	Room string    `gorm:"index" json:"room,omitempty"`

	Persona         string `json:"persona,omitempty"`
	Style           string `json:"style,omitempty"`
	Output          string `json:"output,omitempty"`
	Personalization string `json:"personalization,omitempty"`
	Constraints     string `json:"constraints,omitempty"`
	Examples        string `json:"examples,omitempty"`
	Context         string `json:"context,omitempty"`

	SubjectTemplate  string `gorm:"not null" json:"subject_template"`
	BodyTextTemplate string `gorm:"not null" json:"body_text_template"`
	BodyHTMLTemplate string `json:"body_html_template,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// EmailResult is the outcome of one email generation, fallback or not.
type EmailResult struct {
	Subject      string      `json:"subject"`
	BodyHTML     string      `json:"body_html"`
	BodyText     string      `json:"body_text"`
	SelectedURL  ContentLink `json:"selected_url"`
	Reasoning    string      `json:"reasoning,omitempty"`
	UsedFallback bool        `json:"used_fallback"`
	Model        string      `json:"model,omitempty"`
	CostUSD      float64     `json:"cost_usd,omitempty"`
}

// EmailSendLog records which link was sent to which prospect.
type EmailSendLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProspectID uuid.UUID `gorm:"type:uuid;not null;index" json:"prospect_id"`
	CampaignID uuid.UUID `gorm:"type:uuid;index" json:"campaign_id"`
	URL        string    `gorm:"not null" json:"url"`
	Subject    string    `json:"subject"`
	Fallback   bool      `gorm:"not null" json:"fallback"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
