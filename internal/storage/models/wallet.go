package models

import (
	"time"

	"github.com/google/uuid"
)

// CurveType selects the key-material format for a wallet.
type CurveType string

const (
	CurveSecp256k1 CurveType = "SECP256K1"
	CurveEd25519   CurveType = "ED25519"
)

// WalletStatus is a wallet's operational state.
type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletInactive WalletStatus = "INACTIVE"
)

// Wallet is one signing key. The server-side half of the key lives in
// EncryptedShare; the client half never reaches this service. At most one
// ACTIVE wallet may exist per (user, curve).
type Wallet struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key" json:"walletId"`
	UserID       uuid.UUID    `gorm:"type:uuid;index" json:"userId"`
	CustomerID   string       `gorm:"type:varchar(100);index" json:"customerId"`
	CurveType    CurveType    `gorm:"type:varchar(32)" json:"curveType"`
	PublicKey    string       `gorm:"type:varchar(200);uniqueIndex" json:"publicKey"`
	Status       WalletStatus `gorm:"type:varchar(32)" json:"status"`
	SSSThreshold int          `json:"sssThreshold"`
	// ClientPublicShare is the client's public share point (hex). Public
	// data, kept so a server share rebuilt from custodian fragments can be
	// checked against PublicKey before it is trusted.
	ClientPublicShare string         `gorm:"type:varchar(200)" json:"clientPublicShare"`
	EncryptedShare    []byte         `json:"-"`
	CustodyNodes      []WalletKSNode `gorm:"foreignKey:WalletID;references:ID" json:"-"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}
