// Package custody decides when a wallet's server-side secret must be
// redistributed across the custodian fleet, and carries the fan-out client
// that talks to the individual nodes.
package custody

import (
	"github.com/google/uuid"

	"tss-custody/internal/storage/models"
)

// ReshareReason names why a wallet needs resharing.
type ReshareReason string

const (
	ReasonNodeDataLoss ReshareReason = "UNRECOVERABLE_NODE_DATA_LOSS"
	ReasonNewNodeAdded ReshareReason = "NEW_NODE_ADDED"
)

// Evaluation is the registry's answer for one wallet. NeedsReshare and
// ActiveNodesBelowThreshold are independent: a wallet can be below its safe
// operating threshold without needing resharing when too few nodes exist
// globally, and the two flags are never collapsed into one.
type Evaluation struct {
	NeedsReshare              bool            `json:"needsReshare"`
	Reasons                   []ReshareReason `json:"reasons,omitempty"`
	ActiveNodesBelowThreshold bool            `json:"activeNodesBelowThreshold"`
}

// Evaluate compares a wallet's custody set against a snapshot of the ACTIVE
// custodian catalog. Callers pass both sets explicitly; the registry never
// reads shared mutable state.
func Evaluate(wallet *models.Wallet, custodySet []models.WalletKSNode, activeNodes []models.KeyShareNode) Evaluation {
	var eval Evaluation

	activeCatalog := make(map[uuid.UUID]bool, len(activeNodes))
	for _, n := range activeNodes {
		activeCatalog[n.ID] = true
	}
	custodyByNode := make(map[uuid.UUID]models.WalletNodeStatus, len(custodySet))
	for _, row := range custodySet {
		custodyByNode[row.NodeID] = row.Status
	}

	for _, row := range custodySet {
		if row.Status == models.WalletNodeDataLoss {
			eval.Reasons = append(eval.Reasons, ReasonNodeDataLoss)
			break
		}
	}
	for _, n := range activeNodes {
		if _, held := custodyByNode[n.ID]; !held {
			eval.Reasons = append(eval.Reasons, ReasonNewNodeAdded)
			break
		}
	}
	eval.NeedsReshare = len(eval.Reasons) > 0

	// Rows count toward the operating threshold only when both the row and
	// the catalog node it references are ACTIVE.
	usable := 0
	for _, row := range custodySet {
		if row.Status == models.WalletNodeActive && activeCatalog[row.NodeID] {
			usable++
		}
	}
	eval.ActiveNodesBelowThreshold = usable < wallet.SSSThreshold

	return eval
}
