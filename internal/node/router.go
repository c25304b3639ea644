package node

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
)

type shareRequest struct {
	custody.ShareIdentity
	Share []byte `json:"share"`
}

// SetupRouter builds the custodian node's HTTP API.
func SetupRouter(svc *Service) *gin.Engine {
	router := gin.Default()

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/shares", func(c *gin.Context) {
		var req shareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Register(req.ShareIdentity, req.Share); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "registered"})
	})

	v1.PUT("/shares", func(c *gin.Context) {
		var req shareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Reshare(req.ShareIdentity, req.Share); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reshared"})
	})

	v1.POST("/shares/get", func(c *gin.Context) {
		var identity custody.ShareIdentity
		if err := c.ShouldBindJSON(&identity); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fragment, err := svc.Get(identity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"share": fragment})
	})

	v1.POST("/shares/check", func(c *gin.Context) {
		var identity custody.ShareIdentity
		if err := c.ShouldBindJSON(&identity); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := svc.Check(identity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	return router
}

func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeKeyShareNotFound, apperrors.CodeWalletNotFound, apperrors.CodeUserNotFound:
		status = http.StatusNotFound
	case apperrors.CodeDuplicatePublicKey:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"code": string(code), "message": err.Error()})
}
