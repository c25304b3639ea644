package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tss-custody/internal/dto"
	"tss-custody/internal/engine"
	"tss-custody/internal/storage/models"
)

// SignRound1 opens a signing session and returns the server commitment.
func (h *Handler) SignRound1(c *gin.Context) {
	var req dto.SignRound1Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet_id"})
		return
	}
	message, err := hex.DecodeString(req.MessageHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must be hex"})
		return
	}

	result, err := h.Engine.SignRound1(identityFrom(req.AuthID, req.AuthType), engine.SignRound1Request{
		WalletID:  walletID,
		CurveType: models.CurveType(req.CurveType),
		Message:   message,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.SignRound1Response{
		SessionID:        result.SessionID.String(),
		ServerCommitment: dto.CommitmentFromFrost(result.ServerCommitment),
	})
}

// SignRound2 completes a signing session and returns the server share.
func (h *Handler) SignRound2(c *gin.Context) {
	var req dto.SignRound2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	clientCommitment, err := req.ClientCommitment.ToFrost()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Engine.SignRound2(identityFrom(req.AuthID, req.AuthType), engine.SignRound2Request{
		SessionID:        sessionID,
		ClientCommitment: clientCommitment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SignRound2Response{
		ServerShare:      dto.SignatureShareFromFrost(result.ServerShare),
		ServerCommitment: dto.CommitmentFromFrost(result.ServerCommitment),
	})
}

// Abort aborts an in-progress session.
func (h *Handler) Abort(c *gin.Context) {
	var req dto.AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet_id"})
		return
	}

	err = h.Engine.Abort(identityFrom(req.AuthID, req.AuthType), engine.AbortRequest{
		SessionID: sessionID,
		WalletID:  walletID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}
