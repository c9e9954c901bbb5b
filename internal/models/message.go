package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MessageID      string             `bson:"message_id" json:"id"` // ObjectId hex
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Speaker        string             `bson:"speaker" json:"role"` // user|assistant
	Content        string             `bson:"content" json:"content"`

	// Semantic clustering fields. Embedding is either absent or exactly
	// 1024 wide; ProcessedForClustering implies both TechnicalConcepts and
	// Embedding were written in the same update.
	TechnicalConcepts      []string  `bson:"technical_concepts,omitempty" json:"technical_concepts,omitempty"`
	Embedding              []float64 `bson:"embedding,omitempty" json:"-"`
	ProcessedForClustering bool      `bson:"processed_for_clustering" json:"processed_for_clustering"`

	CreatedAt time.Time `bson:"created_at" json:"timestamp"`
}
