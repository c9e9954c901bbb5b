package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/kenmurphy/anthropic-mastery/internal/api/handlers"
)

type Deps struct {
	Conversation *handlers.ConversationHandler
	Cluster      *handlers.ClusterHandler
	Clustering   *handlers.ClusteringHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := r.Group("/api")

	api.POST("/conversations", d.Conversation.Create)
	api.GET("/conversations/:conversation_id", d.Conversation.Get)
	api.POST("/conversations/:conversation_id/messages", d.Conversation.AddMessage)

	api.GET("/clusters", d.Cluster.List)
	api.GET("/clusters/:cluster_id", d.Cluster.Get)
	api.GET("/conversations/:conversation_id/cluster", d.Cluster.ForConversation)
	api.GET("/conversations/:conversation_id/similar", d.Cluster.Similar)
	api.POST("/conversations/:conversation_id/analyze", d.Clustering.AnalyzeConversation)

	api.GET("/clustering/status", d.Clustering.Status)
	api.POST("/clustering/trigger", d.Clustering.Trigger)
}
