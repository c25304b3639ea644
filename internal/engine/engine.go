// Package engine orchestrates threshold-signing sessions: session/stage
// creation, round execution, idempotency and authorization guards, key
// generation, and custody resharing. It owns every TssSession transition;
// no other component mutates session state.
package engine

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/frost"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage/models"
)

// Engine is the threshold signing session engine.
type Engine struct {
	sessions SessionStore
	wallets  WalletStore
	catalog  CustodyStore
	fleet    custody.NodeClient
	cipher   *sharecrypt.Cipher
}

// New creates a session engine.
func New(sessions SessionStore, wallets WalletStore, catalog CustodyStore, fleet custody.NodeClient, cipher *sharecrypt.Cipher) *Engine {
	return &Engine{
		sessions: sessions,
		wallets:  wallets,
		catalog:  catalog,
		fleet:    fleet,
		cipher:   cipher,
	}
}

// Identity is the caller's verified external identity, as established by
// the transport layer.
type Identity struct {
	AuthID   string
	AuthType models.AuthType
}

// UserPresenceKind tags the possible answers to a user lookup.
type UserPresenceKind string

const (
	PresenceNoUser             UserPresenceKind = "NO_USER"
	PresenceSingleCurvePending UserPresenceKind = "SINGLE_CURVE_PENDING"
	PresenceBothCurvesPresent  UserPresenceKind = "BOTH_CURVES_PRESENT"
)

// UserPresence is the tagged result of CheckUser. Fields beyond Kind are
// meaningful only for the kinds that set them: UserID and Wallets for the
// two present kinds, PendingCurve only for SINGLE_CURVE_PENDING.
type UserPresence struct {
	Kind         UserPresenceKind `json:"kind"`
	UserID       uuid.UUID        `json:"userId,omitempty"`
	Wallets      []models.Wallet  `json:"wallets,omitempty"`
	PendingCurve models.CurveType `json:"pendingCurve,omitempty"`
}

// CheckUser reports which curves a user already holds an ACTIVE wallet for.
func (e *Engine) CheckUser(identity Identity) (*UserPresence, error) {
	user, err := e.wallets.GetUser(identity.AuthID, identity.AuthType)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up user")
	}
	if user == nil {
		return &UserPresence{Kind: PresenceNoUser}, nil
	}
	wallets, err := e.wallets.ListActiveWallets(user.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list wallets")
	}

	held := make(map[models.CurveType]bool, len(wallets))
	for _, w := range wallets {
		held[w.CurveType] = true
	}
	switch {
	case held[models.CurveSecp256k1] && held[models.CurveEd25519]:
		return &UserPresence{Kind: PresenceBothCurvesPresent, UserID: user.ID, Wallets: wallets}, nil
	case held[models.CurveSecp256k1]:
		return &UserPresence{Kind: PresenceSingleCurvePending, UserID: user.ID, Wallets: wallets, PendingCurve: models.CurveEd25519}, nil
	case held[models.CurveEd25519]:
		return &UserPresence{Kind: PresenceSingleCurvePending, UserID: user.ID, Wallets: wallets, PendingCurve: models.CurveSecp256k1}, nil
	default:
		// A user row with no ACTIVE wallet behaves like an absent user for
		// provisioning purposes.
		return &UserPresence{Kind: PresenceNoUser, UserID: user.ID}, nil
	}
}

// requireUser resolves the caller to a user row.
func (e *Engine) requireUser(identity Identity) (*models.User, error) {
	user, err := e.wallets.GetUser(identity.AuthID, identity.AuthType)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeUserNotFound, "no user for auth id %s", identity.AuthID)
	}
	return user, nil
}

func (e *Engine) decryptKeyPackage(wallet *models.Wallet) (*frost.KeyPackage, error) {
	plain, err := e.cipher.Decrypt(wallet.EncryptedShare)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt server key package")
	}
	kp := &frost.KeyPackage{}
	if err := cbor.Unmarshal(plain, kp); err != nil {
		return nil, errors.Wrap(err, "failed to decode server key package")
	}
	return kp, nil
}

func (e *Engine) encryptKeyPackage(kp *frost.KeyPackage) ([]byte, error) {
	plain, err := cbor.Marshal(kp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode server key package")
	}
	return e.cipher.Encrypt(plain)
}

func shareIdentity(identity Identity, wallet *models.Wallet) custody.ShareIdentity {
	return custody.ShareIdentity{
		UserAuthID: identity.AuthID,
		AuthType:   identity.AuthType,
		CurveType:  wallet.CurveType,
		PublicKey:  wallet.PublicKey,
	}
}
