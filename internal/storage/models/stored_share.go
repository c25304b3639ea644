package models

import (
	"time"

	"github.com/google/uuid"
)

// StoredShare is a custodian node's local record of one encrypted share
// fragment. The four identity columns form the share's identity key; no
// other node can resolve or decrypt this row.
type StoredShare struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserAuthID     string    `gorm:"type:varchar(200);uniqueIndex:idx_share_identity" json:"userAuthId"`
	AuthType       AuthType  `gorm:"type:varchar(32);uniqueIndex:idx_share_identity" json:"authType"`
	CurveType      CurveType `gorm:"type:varchar(32);uniqueIndex:idx_share_identity" json:"curveType"`
	PublicKey      string    `gorm:"type:varchar(200);uniqueIndex:idx_share_identity" json:"publicKey"`
	EncryptedShare []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
