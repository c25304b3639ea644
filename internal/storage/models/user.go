package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthType identifies how a user's external identity was established.
type AuthType string

const (
	AuthTypeEmail  AuthType = "EMAIL"
	AuthTypeOAuth  AuthType = "OAUTH"
	AuthTypeAPIKey AuthType = "API_KEY"
)

// User is a wallet owner. The (AuthID, AuthType) pair is the external
// identity supplied by the transport layer after verification.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AuthID    string    `gorm:"type:varchar(200);uniqueIndex:idx_user_identity" json:"authId"`
	AuthType  AuthType  `gorm:"type:varchar(32);uniqueIndex:idx_user_identity" json:"authType"`
	Wallets   []Wallet  `gorm:"foreignKey:UserID;references:ID" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
