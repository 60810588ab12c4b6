package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type ContentLinkRepo interface {
	Create(ctx context.Context, rows []*domain.ContentLink) error
	List(ctx context.Context) ([]domain.ContentLink, error)
	GetByURL(ctx context.Context, url string) (*domain.ContentLink, error)
}

type contentLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentLinkRepo(db *gorm.DB, baseLog *logger.Logger) ContentLinkRepo {
	return &contentLinkRepo{db: db, log: baseLog.With("repo", "ContentLinkRepo")}
}

func (r *contentLinkRepo) Create(ctx context.Context, rows []*domain.ContentLink) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

func (r *contentLinkRepo) List(ctx context.Context) ([]domain.ContentLink, error) {
	var rows []domain.ContentLink
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *contentLinkRepo) GetByURL(ctx context.Context, url string) (*domain.ContentLink, error) {
	if url == "" {
		return nil, nil
	}
	var row domain.ContentLink
	err := r.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
