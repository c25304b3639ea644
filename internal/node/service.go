// Package node implements the service a key-share custodian runs. Each node
// stores encrypted fragments for the wallets it custodies, scoped by the
// share identity key, and never sees another node's fragment.
package node

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/logger"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage/models"
)

// ShareStore is the node-local persistence contract. Lookups return
// (nil, nil) when no row matches the identity key.
type ShareStore interface {
	Get(identity custody.ShareIdentity) (*models.StoredShare, error)
	Create(share *models.StoredShare) error
	Upsert(share *models.StoredShare) error
}

// Service handles one custodian's share operations. Every fragment is
// encrypted with this node's own secret before it is stored.
type Service struct {
	store  ShareStore
	cipher *sharecrypt.Cipher
}

// NewService creates a custodian node service.
func NewService(store ShareStore, cipher *sharecrypt.Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// Register stores a new fragment for an identity key. A fragment may be
// registered once; later redistribution goes through Reshare.
func (s *Service) Register(identity custody.ShareIdentity, fragment []byte) error {
	existing, err := s.store.Get(identity)
	if err != nil {
		return apperrors.Wrap(err, "failed to look up share")
	}
	if existing != nil {
		return apperrors.New(apperrors.CodeDuplicatePublicKey,
			"a share already exists for public key %s", identity.PublicKey)
	}
	encrypted, err := s.cipher.Encrypt(fragment)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt share")
	}
	row := storedShareFor(identity)
	row.EncryptedShare = encrypted
	if err := s.store.Create(row); err != nil {
		return apperrors.Wrap(err, "failed to store share")
	}
	logger.Log.Infof("Registered share fragment for public key %s", identity.PublicKey)
	return nil
}

// Get decrypts and returns the fragment for an identity key.
func (s *Service) Get(identity custody.ShareIdentity) ([]byte, error) {
	row, err := s.store.Get(identity)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up share")
	}
	if row == nil {
		return nil, apperrors.New(apperrors.CodeKeyShareNotFound,
			"no share found for public key %s", identity.PublicKey)
	}
	fragment, err := s.cipher.Decrypt(row.EncryptedShare)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decrypt share")
	}
	return fragment, nil
}

// Check is a side-effect-free existence probe. It requires no authorization:
// the orchestrator uses it pre-authentication to discover fleet coverage.
func (s *Service) Check(identity custody.ShareIdentity) (*custody.CheckResult, error) {
	row, err := s.store.Get(identity)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up share")
	}
	if row == nil {
		return &custody.CheckResult{Exists: false}, nil
	}
	sum := blake3.Sum256(row.EncryptedShare)
	return &custody.CheckResult{
		Exists:      true,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

// Reshare is an idempotent upsert: it creates the fragment if absent and
// overwrites it if present. Used whenever a wallet's custody set changes.
func (s *Service) Reshare(identity custody.ShareIdentity, fragment []byte) error {
	encrypted, err := s.cipher.Encrypt(fragment)
	if err != nil {
		return apperrors.Wrap(err, "failed to encrypt share")
	}
	row := storedShareFor(identity)
	row.EncryptedShare = encrypted
	if err := s.store.Upsert(row); err != nil {
		return apperrors.Wrap(err, "failed to upsert share")
	}
	logger.Log.Infof("Reshared fragment for public key %s", identity.PublicKey)
	return nil
}

func storedShareFor(identity custody.ShareIdentity) *models.StoredShare {
	return &models.StoredShare{
		UserAuthID: identity.UserAuthID,
		AuthType:   identity.AuthType,
		CurveType:  identity.CurveType,
		PublicKey:  identity.PublicKey,
	}
}
