package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
	"github.com/kenmurphy/anthropic-mastery/internal/utils"
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type createConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConversationHandler.Create", "title is required", err))
		return
	}

	conv, err := h.svc.Create(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conv, msgs, err := h.svc.Get(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation":  conv,
		"messages":      msgs,
		"message_count": len(msgs),
	})
}

type addMessageRequest struct {
	Speaker string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *ConversationHandler) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ConversationHandler.AddMessage", "role and content are required", err))
		return
	}

	msg, err := h.svc.AddMessage(c.Request.Context(), c.Param("conversation_id"), req.Speaker, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
