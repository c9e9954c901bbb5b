package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ConversationCluster is one semantic group produced by a clustering run.
// The full set of rows is replaced atomically on every successful run;
// cluster ids are contiguous within a run ("cluster_0".."cluster_{k-1}").
type ConversationCluster struct {
	ClusterID       string          `gorm:"column:cluster_id;primaryKey" json:"cluster_id"`
	Label           string          `gorm:"column:label;type:text" json:"label"`
	Description     string          `gorm:"column:description;type:text" json:"description"`
	ConversationIDs pq.StringArray  `gorm:"column:conversation_ids;type:text[]" json:"conversation_ids"`
	KeyConcepts     pq.StringArray  `gorm:"column:key_concepts;type:text[]" json:"key_concepts"`
	Centroid        pgvector.Vector `gorm:"column:centroid;type:vector(1024)" json:"-"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (ConversationCluster) TableName() string { return "conversation_clusters" }

func (c *ConversationCluster) ConversationCount() int { return len(c.ConversationIDs) }

// ClusteringRun is the immutable audit record of one clustering invocation.
// KScores holds the silhouette score per evaluated k when auto-k is enabled.
type ClusteringRun struct {
	RunID              string         `gorm:"column:run_id;primaryKey" json:"run_id"`
	TotalConversations int            `gorm:"column:total_conversations" json:"total_conversations"`
	ClustersCreated    int            `gorm:"column:clusters_created" json:"clusters_created"`
	KScores            datatypes.JSON `gorm:"column:k_scores;type:jsonb" json:"k_scores,omitempty"`
	CreatedAt          time.Time      `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (ClusteringRun) TableName() string { return "clustering_runs" }
