package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ProspectRepo interface {
	Upsert(ctx context.Context, row *domain.Prospect) error
	GetByEmail(ctx context.Context, email string) (*domain.Prospect, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Prospect, error)
	MarkURLSent(ctx context.Context, id uuid.UUID, url string) error
}

type prospectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProspectRepo(db *gorm.DB, baseLog *logger.Logger) ProspectRepo {
	return &prospectRepo{db: db, log: baseLog.With("repo", "ProspectRepo")}
}

func (r *prospectRepo) Upsert(ctx context.Context, row *domain.Prospect) error {
	if row == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"company_name", "contact_name", "job_title",
				"current_room", "lead_score", "days_in_room", "email_sequence_position",
				"recent_pages_json", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *prospectRepo) GetByEmail(ctx context.Context, email string) (*domain.Prospect, error) {
	if email == "" {
		return nil, nil
	}
	var row domain.Prospect
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *prospectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Prospect, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.Prospect
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// MarkURLSent appends url to the prospect's sent list, once.
func (r *prospectRepo) MarkURLSent(ctx context.Context, id uuid.UUID, url string) error {
	if id == uuid.Nil || url == "" {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row domain.Prospect
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		sent := SentURLs(&row)
		for _, u := range sent {
			if u == url {
				return nil
			}
		}
		sent = append(sent, url)
		blob, err := json.Marshal(sent)
		if err != nil {
			return fmt.Errorf("encode sent urls: %w", err)
		}
		return tx.Model(&domain.Prospect{}).
			Where("id = ?", id).
			Update("urls_sent_json", datatypes.JSON(blob)).Error
	})
}

// SentURLs decodes the prospect's already-sent link URLs. A missing or broken
// column reads as empty.
func SentURLs(p *domain.Prospect) []string {
	if p == nil || len(p.URLsSentJSON) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.URLsSentJSON, &out); err != nil {
		return nil
	}
	return out
}

// RecentPages decodes the prospect's recent page visits.
func RecentPages(p *domain.Prospect) []domain.PageVisit {
	if p == nil || len(p.RecentPagesJSON) == 0 {
		return nil
	}
	var out []domain.PageVisit
	if err := json.Unmarshal(p.RecentPagesJSON, &out); err != nil {
		return nil
	}
	return out
}
