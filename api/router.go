package api

import (
	"mediaforge/config"

	"github.com/gin-gonic/gin"
)

func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))

	// Browsers cannot attach custom headers to a websocket handshake,
	// so the progress stream sits outside the identity requirement.
	v1.GET("/ws/progress/:taskId", h.handleProgressWS)

	authed := v1.Group("")
	authed.Use(UserIdentity())
	{
		authed.POST("/process", h.handleProcess)
		authed.GET("/tasks", h.handleListTasks)
		authed.GET("/tasks/:taskId", h.handleGetTask)
		authed.PATCH("/tasks/:taskId/cancel", h.handleCancelTask)
		authed.GET("/capabilities", h.handleCapabilities)
		authed.GET("/file-info", h.handleFileInfo)
	}

	return r
}
