package engine

import (
	"github.com/google/uuid"

	"tss-custody/internal/storage/models"
)

// SessionStore is the durable record of signing/keygen operations and their
// round-by-round progress. Lookups return (nil, nil) when no row matches.
// All methods invoked inside an InTx closure share one atomic transaction,
// so a stage advance and the session transition it implies commit together
// or not at all; concurrent operations on the same session serialize at the
// storage layer.
type SessionStore interface {
	CreateSession(walletID uuid.UUID, customerID string) (*models.TssSession, error)
	GetSession(sessionID uuid.UUID) (*models.TssSession, error)
	GetStage(sessionID uuid.UUID, stageType models.StageType) (*models.TssStage, error)
	CreateStage(sessionID uuid.UUID, stageType models.StageType, status models.StageStatus, data []byte) (*models.TssStage, error)
	AdvanceStage(stageID uuid.UUID, status models.StageStatus, data []byte) error
	// SetSessionState succeeds only from IN_PROGRESS; terminal states are
	// immutable.
	SetSessionState(sessionID uuid.UUID, state models.SessionState) error
	InTx(fn func(SessionStore) error) error
}

// WalletProvision pairs one wallet row with its custody associations.
type WalletProvision struct {
	Wallet      *models.Wallet
	CustodyRows []models.WalletKSNode
}

// WalletStore persists users and wallets. Lookups return (nil, nil) when no
// row matches.
type WalletStore interface {
	GetUser(authID string, authType models.AuthType) (*models.User, error)
	GetUserByID(userID uuid.UUID) (*models.User, error)
	CreateUser(user *models.User) error
	GetWallet(walletID uuid.UUID) (*models.Wallet, error)
	GetActiveWallet(userID uuid.UUID, curve models.CurveType) (*models.Wallet, error)
	GetWalletByPublicKey(publicKey string) (*models.Wallet, error)
	ListActiveWallets(userID uuid.UUID) ([]models.Wallet, error)
	// CreateWalletsWithCustody creates every wallet row and its custody
	// associations in one transaction; a keygen call's wallets are never
	// observable partially, and a wallet without custody rows is never
	// observable at all.
	CreateWalletsWithCustody(provisions []WalletProvision) error
	UpdateWalletShare(walletID uuid.UUID, encryptedShare []byte) error
	UpdateWalletThreshold(walletID uuid.UUID, threshold int) error
}

// CustodyStore persists the fleet catalog and per-wallet custody rows.
type CustodyStore interface {
	ListActiveNodes() ([]models.KeyShareNode, error)
	ListWalletNodes(walletID uuid.UUID) ([]models.WalletKSNode, error)
	UpsertWalletNode(row *models.WalletKSNode) error
	// CurrentThreshold returns the global SSS threshold applied to newly
	// provisioned wallets.
	CurrentThreshold() (int, error)
}
