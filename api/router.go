package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tss-custody/api/handlers"
	"tss-custody/internal/engine"
)

// SetupRouter builds the orchestrator's HTTP API.
func SetupRouter(e *engine.Engine) *gin.Engine {
	router := gin.Default()
	h := handlers.NewHandler(e)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/users/check", h.CheckUser)
	v1.POST("/keys", h.Keygen)
	v1.POST("/sign/round1", h.SignRound1)
	v1.POST("/sign/round2", h.SignRound2)
	v1.POST("/sign/abort", h.Abort)
	v1.GET("/wallets/:walletId/custody", h.EvaluateCustody)
	v1.POST("/wallets/:walletId/reshare", h.Reshare)
	v1.POST("/wallets/:walletId/recover", h.RecoverShare)

	return router
}
