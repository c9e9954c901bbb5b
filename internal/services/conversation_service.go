package services

import (
	"context"
	"errors"

	"github.com/kenmurphy/anthropic-mastery/internal/models"
	mongorepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/mongo"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"
)

// MessageObserver is notified after a message is persisted. The clustering
// worker implements it; notification is fire-and-forget.
type MessageObserver interface {
	OnNewMessage(messageID string)
}

type ConversationService interface {
	Create(ctx context.Context, title string) (*models.Conversation, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, []models.Message, error)
	AddMessage(ctx context.Context, conversationID, speaker, content string) (*models.Message, error)
}

type conversationService struct {
	conversations mongorepo.ConversationRepository
	messages      mongorepo.MessageRepository
	observer      MessageObserver
}

func NewConversationService(conversations mongorepo.ConversationRepository, messages mongorepo.MessageRepository, observer MessageObserver) ConversationService {
	return &conversationService{
		conversations: conversations,
		messages:      messages,
		observer:      observer,
	}
}

func (s *conversationService) Create(ctx context.Context, title string) (*models.Conversation, error) {
	const op = "ConversationService.Create"

	if title == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title is required", nil)
	}

	conv := &models.Conversation{Title: title}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create conversation", err)
	}
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*models.Conversation, []models.Message, error) {
	const op = "ConversationService.Get"

	if conversationID == "" {
		return nil, nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	return conv, msgs, nil
}

func (s *conversationService) AddMessage(ctx context.Context, conversationID, speaker, content string) (*models.Message, error) {
	const op = "ConversationService.AddMessage"

	if conversationID == "" || content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id and content are required", nil)
	}
	if speaker != models.SpeakerUser && speaker != models.SpeakerAssistant {
		return nil, utils.E(utils.CodeInvalidArgument, op, "speaker must be user or assistant", nil)
	}

	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Speaker:        speaker,
		Content:        content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert message", err)
	}

	if s.observer != nil {
		s.observer.OnNewMessage(msg.MessageID)
	}
	return msg, nil
}
