package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByMessageID(ctx context.Context, messageID string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	ListProcessed(ctx context.Context, conversationID string) ([]models.Message, error)
	ListUnprocessed(ctx context.Context, conversationID string) ([]models.Message, error)
	CountUnprocessed(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
	// SetAnalysis writes concepts, embedding, and the processed flag in a
	// single document update so analysis results are all-or-nothing.
	SetAnalysis(ctx context.Context, messageID string, concepts []string, embedding []float64) error
}

type messageRepo struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepository {
	return &messageRepo{col: db.Collection("messages")}
}

func (r *messageRepo) Create(ctx context.Context, m *models.Message) error {
	if m.MessageID == "" {
		m.MessageID = primitive.NewObjectID().Hex()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *messageRepo) GetByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	err := r.col.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &m, err
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(ctx, bson.M{"conversation_id": conversationID})
}

func (r *messageRepo) ListProcessed(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(ctx, bson.M{
		"conversation_id":          conversationID,
		"processed_for_clustering": true,
	})
}

func (r *messageRepo) ListUnprocessed(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(ctx, bson.M{
		"conversation_id":          conversationID,
		"processed_for_clustering": false,
	})
}

func (r *messageRepo) list(ctx context.Context, filter bson.M) ([]models.Message, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) CountUnprocessed(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"processed_for_clustering": false})
}

func (r *messageRepo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}

func (r *messageRepo) SetAnalysis(ctx context.Context, messageID string, concepts []string, embedding []float64) error {
	if concepts == nil {
		concepts = []string{}
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"message_id": messageID},
		bson.M{"$set": bson.M{
			"technical_concepts":       concepts,
			"embedding":                embedding,
			"processed_for_clustering": true,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}
