package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"tss-custody/internal/dto"
	"tss-custody/internal/engine"
	"tss-custody/internal/storage/models"
)

// Keygen provisions one or two wallets for the caller.
func (h *Handler) Keygen(c *gin.Context) {
	var req dto.KeygenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	curves := make([]engine.KeygenCurveInput, 0, len(req.Curves))
	for _, input := range req.Curves {
		clientPub, err := hex.DecodeString(input.ClientPublicShare)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_public_share must be hex"})
			return
		}
		serverShare, err := hex.DecodeString(input.ServerSecretShare)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "server_secret_share must be hex"})
			return
		}
		curves = append(curves, engine.KeygenCurveInput{
			CurveType:         models.CurveType(input.CurveType),
			ClientPublicShare: clientPub,
			ServerSecretShare: serverShare,
		})
	}

	result, err := h.Engine.Keygen(c.Request.Context(), identityFrom(req.AuthID, req.AuthType), engine.KeygenRequest{
		CustomerID: req.CustomerID,
		Curves:     curves,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.KeygenResponse{SessionID: result.SessionID.String()}
	for _, w := range result.Wallets {
		resp.Wallets = append(resp.Wallets, dto.KeygenWallet{
			WalletID:  w.WalletID.String(),
			CurveType: string(w.CurveType),
			PublicKey: w.PublicKey,
		})
	}
	c.JSON(http.StatusCreated, resp)
}

// CheckUser reports which curves the caller already holds wallets for, as a
// tagged result so clients can match exhaustively on kind.
func (h *Handler) CheckUser(c *gin.Context) {
	var req dto.CheckUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	presence, err := h.Engine.CheckUser(identityFrom(req.AuthID, req.AuthType))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presence)
}
