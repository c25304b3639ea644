package models

import (
	"time"

	"github.com/google/uuid"
)

// StageType names a protocol phase family within a session. A session may
// carry several stage types at once but never two stages of the same type.
type StageType string

const (
	StageSign    StageType = "SIGN"
	StageKeygen  StageType = "KEYGEN"
	StageTriples StageType = "TRIPLES"
)

// StageStatus is the stage-type-specific progression marker.
type StageStatus string

const (
	StageRound1    StageStatus = "ROUND_1"
	StageCompleted StageStatus = "COMPLETED"
	StageFailed    StageStatus = "FAILED"
)

// TssStage records round-by-round progress of one stage type inside a
// session. Rows are created at round 1 of their type and only ever advanced
// by the session engine; they are never deleted, which keeps a full audit
// trail of every protocol run.
type TssStage struct {
	ID           uuid.UUID   `gorm:"type:uuid;primary_key" json:"stageId"`
	SessionID    uuid.UUID   `gorm:"type:uuid;uniqueIndex:idx_session_stage" json:"sessionId"`
	StageType    StageType   `gorm:"type:varchar(32);uniqueIndex:idx_session_stage" json:"stageType"`
	StageStatus  StageStatus `gorm:"type:varchar(32)" json:"stageStatus"`
	StageData    []byte      `json:"-"` // encrypted CBOR variant keyed by StageType
	ErrorMessage string      `gorm:"type:varchar(500)" json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
