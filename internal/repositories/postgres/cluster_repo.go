package postgres

import (
	"context"
	"errors"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"
	"gorm.io/gorm"
)

type ClusterRepository interface {
	// ReplaceAll swaps the entire cluster set in one transaction. Readers
	// never observe a half-old, half-new state; on failure the previous
	// set survives untouched.
	ReplaceAll(ctx context.Context, clusters []models.ConversationCluster) error
	ListAll(ctx context.Context) ([]models.ConversationCluster, error)
	GetByClusterID(ctx context.Context, clusterID string) (*models.ConversationCluster, error)
	GetByConversationID(ctx context.Context, conversationID string) (*models.ConversationCluster, error)
}

type clusterRepo struct {
	db *gorm.DB
}

func NewClusterRepo(db *gorm.DB) ClusterRepository {
	return &clusterRepo{db: db}
}

func (r *clusterRepo) ReplaceAll(ctx context.Context, clusters []models.ConversationCluster) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ConversationCluster{}).Error; err != nil {
			return err
		}
		if len(clusters) == 0 {
			return nil
		}
		return tx.Create(&clusters).Error
	})
}

func (r *clusterRepo) ListAll(ctx context.Context) ([]models.ConversationCluster, error) {
	var rows []models.ConversationCluster
	err := r.db.WithContext(ctx).Order("cluster_id ASC").Find(&rows).Error
	return rows, err
}

func (r *clusterRepo) GetByClusterID(ctx context.Context, clusterID string) (*models.ConversationCluster, error) {
	var row models.ConversationCluster
	err := r.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *clusterRepo) GetByConversationID(ctx context.Context, conversationID string) (*models.ConversationCluster, error) {
	var row models.ConversationCluster
	err := r.db.WithContext(ctx).
		Where("? = ANY(conversation_ids)", conversationID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
