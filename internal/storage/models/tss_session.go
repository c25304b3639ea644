package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a TssSession. COMPLETED, ABORTED
// and FAILED are terminal: no stage may be created or advanced under them.
type SessionState string

const (
	SessionInProgress SessionState = "IN_PROGRESS"
	SessionCompleted  SessionState = "COMPLETED"
	SessionAborted    SessionState = "ABORTED"
	SessionFailed     SessionState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted || s == SessionFailed
}

// TssSession is one logical multi-round operation against one wallet.
// Only the session engine mutates it; the custody layer never does.
type TssSession struct {
	ID         uuid.UUID    `gorm:"type:uuid;primary_key" json:"sessionId"`
	WalletID   uuid.UUID    `gorm:"type:uuid;index" json:"walletId"`
	CustomerID string       `gorm:"type:varchar(100)" json:"customerId"`
	State      SessionState `gorm:"type:varchar(32)" json:"state"`
	Stages     []TssStage   `gorm:"foreignKey:SessionID;references:ID" json:"-"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}
