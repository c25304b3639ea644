package dto

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"tss-custody/internal/frost"
)

// Commitment is the wire form of a round-1 commitment; all fields hex.
type Commitment struct {
	Identifier string `json:"identifier" binding:"required"`
	Hiding     string `json:"hiding" binding:"required"`
	Binding    string `json:"binding" binding:"required"`
}

// ToFrost decodes the wire form into protocol bytes.
func (c Commitment) ToFrost() (frost.Commitment, error) {
	identifier, err := hex.DecodeString(c.Identifier)
	if err != nil {
		return frost.Commitment{}, errors.Wrap(err, "invalid commitment identifier hex")
	}
	hiding, err := hex.DecodeString(c.Hiding)
	if err != nil {
		return frost.Commitment{}, errors.Wrap(err, "invalid hiding commitment hex")
	}
	binding, err := hex.DecodeString(c.Binding)
	if err != nil {
		return frost.Commitment{}, errors.Wrap(err, "invalid binding commitment hex")
	}
	return frost.Commitment{Identifier: identifier, Hiding: hiding, Binding: binding}, nil
}

// CommitmentFromFrost encodes protocol bytes for the wire.
func CommitmentFromFrost(c frost.Commitment) Commitment {
	return Commitment{
		Identifier: hex.EncodeToString(c.Identifier),
		Hiding:     hex.EncodeToString(c.Hiding),
		Binding:    hex.EncodeToString(c.Binding),
	}
}

// SignatureShare is the wire form of a round-2 share; all fields hex.
type SignatureShare struct {
	Identifier string `json:"identifier"`
	Share      string `json:"share"`
}

// SignatureShareFromFrost encodes a share for the wire.
func SignatureShareFromFrost(s frost.SignatureShare) SignatureShare {
	return SignatureShare{
		Identifier: hex.EncodeToString(s.Identifier),
		Share:      hex.EncodeToString(s.Share),
	}
}

// SignRound1Request opens a signing session.
type SignRound1Request struct {
	AuthID     string `json:"auth_id" binding:"required"`
	AuthType   string `json:"auth_type" binding:"required"`
	WalletID   string `json:"wallet_id" binding:"required"`
	CurveType  string `json:"curve_type" binding:"required"`
	MessageHex string `json:"message" binding:"required"`
}

// SignRound1Response returns the server commitment and session handle.
type SignRound1Response struct {
	SessionID        string     `json:"session_id"`
	ServerCommitment Commitment `json:"server_commitment"`
}

// SignRound2Request completes a signing session.
type SignRound2Request struct {
	AuthID           string     `json:"auth_id" binding:"required"`
	AuthType         string     `json:"auth_type" binding:"required"`
	SessionID        string     `json:"session_id" binding:"required"`
	ClientCommitment Commitment `json:"client_commitment" binding:"required"`
}

// SignRound2Response returns the server's signature share.
type SignRound2Response struct {
	ServerShare      SignatureShare `json:"server_share"`
	ServerCommitment Commitment     `json:"server_commitment"`
}

// AbortRequest aborts an in-progress session.
type AbortRequest struct {
	AuthID    string `json:"auth_id" binding:"required"`
	AuthType  string `json:"auth_type" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	WalletID  string `json:"wallet_id" binding:"required"`
}
