package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type EmailSendLogRepo interface {
	Create(ctx context.Context, row *domain.EmailSendLog) error
	ListByProspect(ctx context.Context, prospectID uuid.UUID) ([]domain.EmailSendLog, error)
}

type emailSendLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmailSendLogRepo(db *gorm.DB, baseLog *logger.Logger) EmailSendLogRepo {
	return &emailSendLogRepo{db: db, log: baseLog.With("repo", "EmailSendLogRepo")}
}

func (r *emailSendLogRepo) Create(ctx context.Context, row *domain.EmailSendLog) error {
	if row == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *emailSendLogRepo) ListByProspect(ctx context.Context, prospectID uuid.UUID) ([]domain.EmailSendLog, error) {
	if prospectID == uuid.Nil {
		return nil, nil
	}
	var rows []domain.EmailSendLog
	err := r.db.WithContext(ctx).
		Where("prospect_id = ?", prospectID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
