package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/embedding"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/llm"
	mongorepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/mongo"

	"github.com/sirupsen/logrus"
)

// AnalysisService extracts concepts and embeddings from individual messages
// and exposes the derived (computed-on-read) conversation aggregates.
type AnalysisService interface {
	// AnalyzeMessage analyzes one message and persists the result. It is
	// idempotent: already-processed messages succeed without any work, and
	// a failed call leaves the message completely unmodified.
	AnalyzeMessage(ctx context.Context, msg *models.Message) bool

	// AnalyzeConversationMessages analyzes every unprocessed message in a
	// conversation and returns how many succeeded.
	AnalyzeConversationMessages(ctx context.Context, conversationID string) int

	// ConversationEmbedding is the element-wise mean of the conversation's
	// analyzed message embeddings, or nil when none qualify. Never stored.
	ConversationEmbedding(ctx context.Context, conversationID string) []float64

	// ConversationConcepts is the deduplicated union of the conversation's
	// analyzed message concepts, in first-seen order.
	ConversationConcepts(ctx context.Context, conversationID string) []string
}

type analysisService struct {
	messages mongorepo.MessageRepository
	llm      llm.Provider
	embedder embedding.Provider
	logger   *logrus.Logger
}

func NewAnalysisService(messages mongorepo.MessageRepository, provider llm.Provider, embedder embedding.Provider, logger *logrus.Logger) AnalysisService {
	return &analysisService{
		messages: messages,
		llm:      provider,
		embedder: embedder,
		logger:   logger,
	}
}

func (s *analysisService) AnalyzeMessage(ctx context.Context, msg *models.Message) bool {
	log := s.logger.WithField("message_id", msg.MessageID)

	if msg.ProcessedForClustering {
		log.Debug("message already processed for clustering")
		return true
	}

	concepts, err := s.llm.ExtractConcepts(ctx, msg.Content)
	if err != nil {
		log.WithError(err).Error("concept extraction failed")
		return false
	}
	if len(concepts) == 0 {
		log.Debug("no concepts extracted; message treated as chit-chat")
	}

	parts := make([]string, 0, len(concepts))
	titles := make([]string, 0, len(concepts))
	for _, c := range concepts {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Title, c.Summary))
		titles = append(titles, c.Title)
	}

	vec, err := s.embedder.Embed(ctx, strings.Join(parts, ", "))
	if err != nil {
		log.WithError(err).Error("embedding generation failed")
		return false
	}
	if len(vec) != embedding.Dimensions {
		log.WithField("dimensions", len(vec)).Error("embedding has wrong dimensionality")
		return false
	}

	if err := s.messages.SetAnalysis(ctx, msg.MessageID, titles, vec); err != nil {
		log.WithError(err).Error("failed to persist analysis results")
		return false
	}

	msg.TechnicalConcepts = titles
	msg.Embedding = vec
	msg.ProcessedForClustering = true

	log.WithField("concepts", len(titles)).Info("analyzed message")
	return true
}

func (s *analysisService) AnalyzeConversationMessages(ctx context.Context, conversationID string) int {
	log := s.logger.WithField("conversation_id", conversationID)

	pending, err := s.messages.ListUnprocessed(ctx, conversationID)
	if err != nil {
		log.WithError(err).Error("failed to list unprocessed messages")
		return 0
	}

	analyzed := 0
	for i := range pending {
		if s.AnalyzeMessage(ctx, &pending[i]) {
			analyzed++
		}
	}

	if len(pending) > 0 {
		log.WithFields(logrus.Fields{"analyzed": analyzed, "pending": len(pending)}).
			Info("analyzed conversation backlog")
	}
	return analyzed
}

func (s *analysisService) ConversationEmbedding(ctx context.Context, conversationID string) []float64 {
	msgs, err := s.messages.ListProcessed(ctx, conversationID)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).
			Error("failed to list processed messages")
		return nil
	}

	var (
		sum   []float64
		count int
	)
	for _, m := range msgs {
		if len(m.Embedding) != embedding.Dimensions {
			continue
		}
		if sum == nil {
			sum = make([]float64, embedding.Dimensions)
		}
		for i, v := range m.Embedding {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}

	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}

func (s *analysisService) ConversationConcepts(ctx context.Context, conversationID string) []string {
	msgs, err := s.messages.ListProcessed(ctx, conversationID)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).
			Error("failed to list processed messages")
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	for _, m := range msgs {
		for _, c := range m.TechnicalConcepts {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
