package postgres

import (
	"context"
	"errors"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"
	"gorm.io/gorm"
)

type RunRepository interface {
	Insert(ctx context.Context, run *models.ClusteringRun) error
	Latest(ctx context.Context) (*models.ClusteringRun, error)
}

type runRepo struct {
	db *gorm.DB
}

func NewRunRepo(db *gorm.DB) RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Insert(ctx context.Context, run *models.ClusteringRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepo) Latest(ctx context.Context) (*models.ClusteringRun, error) {
	var row models.ClusteringRun
	err := r.db.WithContext(ctx).Order("created_at DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
