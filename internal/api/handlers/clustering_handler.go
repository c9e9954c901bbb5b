package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
	"github.com/kenmurphy/anthropic-mastery/internal/workers"
)

// ClusteringHandler exposes orchestrator status and manual controls.
type ClusteringHandler struct {
	worker   *workers.ClusteringWorker
	analysis services.AnalysisService
}

func NewClusteringHandler(worker *workers.ClusteringWorker, analysis services.AnalysisService) *ClusteringHandler {
	return &ClusteringHandler{worker: worker, analysis: analysis}
}

func (h *ClusteringHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.worker.Status(c.Request.Context()))
}

func (h *ClusteringHandler) Trigger(c *gin.Context) {
	if !h.worker.ForceCluster() {
		c.JSON(http.StatusConflict, gin.H{
			"started": false,
			"message": "clustering already in progress",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"started": true,
		"message": "clustering run started",
	})
}

func (h *ClusteringHandler) AnalyzeConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	analyzed := h.analysis.AnalyzeConversationMessages(c.Request.Context(), conversationID)
	c.JSON(http.StatusOK, gin.H{
		"conversation_id":   conversationID,
		"messages_analyzed": analyzed,
	})
}
