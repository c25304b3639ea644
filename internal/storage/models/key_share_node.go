package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NodeStatus is a custodian's standing in the process-wide catalog.
type NodeStatus string

const (
	NodeActive NodeStatus = "ACTIVE"
)

// KeyShareNode is one custodian in the process-wide fleet catalog.
// Retirement is a soft delete so historical custody rows keep resolving.
type KeyShareNode struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	NodeID    string         `gorm:"type:varchar(100);uniqueIndex" json:"nodeId"`
	ServerURL string         `gorm:"type:varchar(300)" json:"serverUrl"`
	Status    NodeStatus     `gorm:"type:varchar(32)" json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// WalletNodeStatus tracks one custodian's standing for one wallet.
type WalletNodeStatus string

const (
	WalletNodeActive        WalletNodeStatus = "ACTIVE"
	WalletNodeDataLoss      WalletNodeStatus = "UNRECOVERABLE_DATA_LOSS"
	WalletNodeNotRegistered WalletNodeStatus = "NOT_REGISTERED"
)

// WalletKSNode associates a wallet with one custodian holding a fragment of
// its server-side secret. Rows are updated during resharing, never removed.
type WalletKSNode struct {
	ID        uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	WalletID  uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_wallet_node" json:"walletId"`
	NodeID    uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_wallet_node" json:"nodeId"`
	Status    WalletNodeStatus `gorm:"type:varchar(40)" json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// KeyShareNodeMeta is the single global record holding the SSS threshold
// applied to newly provisioned wallets.
type KeyShareNodeMeta struct {
	ID           uint      `gorm:"primary_key" json:"-"`
	SSSThreshold int       `json:"sssThreshold"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
