package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

// EmailTemplateRepo stores the fallback/prompt templates. ResolveTemplate
// satisfies the email orchestrator's TemplateSource.
type EmailTemplateRepo interface {
	Create(ctx context.Context, row *domain.EmailTemplate) error
	GetByName(ctx context.Context, name string) (*domain.EmailTemplate, error)
	List(ctx context.Context) ([]domain.EmailTemplate, error)
	ResolveTemplate(ctx context.Context, room string) (domain.EmailTemplate, bool, error)
}

type emailTemplateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmailTemplateRepo(db *gorm.DB, baseLog *logger.Logger) EmailTemplateRepo {
	return &emailTemplateRepo{db: db, log: baseLog.With("repo", "EmailTemplateRepo")}
}

func (r *emailTemplateRepo) Create(ctx context.Context, row *domain.EmailTemplate) error {
	if row == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *emailTemplateRepo) GetByName(ctx context.Context, name string) (*domain.EmailTemplate, error) {
	if name == "" {
		return nil, nil
	}
	var row domain.EmailTemplate
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *emailTemplateRepo) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	var rows []domain.EmailTemplate
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ResolveTemplate prefers a room-specific template, then the room-less
// default, newest first in both cases.
func (r *emailTemplateRepo) ResolveTemplate(ctx context.Context, room string) (domain.EmailTemplate, bool, error) {
	var row domain.EmailTemplate
	if room != "" {
		err := r.db.WithContext(ctx).
			Where("room = ?", room).
			Order("updated_at DESC").
			First(&row).Error
		if err == nil {
			return row, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EmailTemplate{}, false, err
		}
	}

	err := r.db.WithContext(ctx).
		Where("room = '' OR room IS NULL").
		Order("updated_at DESC").
		First(&row).Error
	if err == nil {
		return row, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EmailTemplate{}, false, nil
	}
	return domain.EmailTemplate{}, false, err
}
