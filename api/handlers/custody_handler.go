package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EvaluateCustody reports a wallet's resharing needs and threshold standing.
func (h *Handler) EvaluateCustody(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet id"})
		return
	}
	eval, err := h.Engine.EvaluateWallet(walletID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

// Reshare redistributes a wallet's custody fragments if the registry says
// it is needed; the response reports the evaluation that drove the call.
func (h *Handler) Reshare(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet id"})
		return
	}
	eval, err := h.Engine.Reshare(c.Request.Context(), walletID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

// RecoverShare rebuilds a wallet's server share from custodian fragments.
// Operator-facing; the share itself is never returned.
func (h *Handler) RecoverShare(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet id"})
		return
	}
	if _, err := h.Engine.RecoverServerShare(c.Request.Context(), walletID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recovered"})
}
