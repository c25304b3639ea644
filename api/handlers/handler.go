package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/engine"
	"tss-custody/internal/storage/models"
)

// Handler carries the session engine into the gin handlers.
type Handler struct {
	Engine *engine.Engine
}

// NewHandler creates the orchestrator's handler set.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{Engine: e}
}

func identityFrom(authID, authType string) engine.Identity {
	return engine.Identity{AuthID: authID, AuthType: models.AuthType(authType)}
}

// writeError maps the taxonomy to HTTP statuses. The body always carries
// the machine-readable code plus a human-readable message.
func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeUserNotFound, apperrors.CodeWalletNotFound,
		apperrors.CodeSessionNotFound, apperrors.CodeKeyShareNotFound:
		status = http.StatusNotFound
	case apperrors.CodeUnauthorized:
		status = http.StatusForbidden
	case apperrors.CodeInvalidSession, apperrors.CodeWalletAlreadyExists,
		apperrors.CodeDuplicatePublicKey:
		status = http.StatusConflict
	case apperrors.CodeNodeInsufficient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"code": string(code), "message": err.Error()})
}
