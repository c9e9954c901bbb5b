package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
)

type ClusterHandler struct {
	svc services.ClusteringService
}

func NewClusterHandler(svc services.ClusteringService) *ClusterHandler {
	return &ClusterHandler{svc: svc}
}

func (h *ClusterHandler) List(c *gin.Context) {
	clusters, err := h.svc.GetAllClusters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clusters":       clusters,
		"total_clusters": len(clusters),
	})
}

func (h *ClusterHandler) Get(c *gin.Context) {
	cluster, err := h.svc.GetClusterByID(c.Request.Context(), c.Param("cluster_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cluster": cluster})
}

func (h *ClusterHandler) ForConversation(c *gin.Context) {
	cluster, err := h.svc.GetConversationCluster(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cluster": cluster})
}

func (h *ClusterHandler) Similar(c *gin.Context) {
	threshold := 0.6
	if s := c.Query("threshold"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			threshold = f
		}
	}

	similar, err := h.svc.FindSimilar(c.Request.Context(), c.Param("conversation_id"), threshold)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"similar_conversations": similar,
		"threshold":             threshold,
		"count":                 len(similar),
	})
}
