package storage

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tss-custody/internal/engine"
	"tss-custody/internal/storage/models"
)

// GormWalletStore implements the engine's WalletStore on gorm.
type GormWalletStore struct {
	db *gorm.DB
}

// NewWalletStore creates a wallet store over a gorm handle.
func NewWalletStore(db *gorm.DB) *GormWalletStore {
	return &GormWalletStore{db: db}
}

func (s *GormWalletStore) GetUser(authID string, authType models.AuthType) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "auth_id = ? AND auth_type = ?", authID, authType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user row")
	}
	return &user, nil
}

func (s *GormWalletStore) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user row")
	}
	return &user, nil
}

func (s *GormWalletStore) CreateUser(user *models.User) error {
	return errors.Wrap(s.db.Create(user).Error, "failed to create user row")
}

func (s *GormWalletStore) GetWallet(walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.First(&wallet, "id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet row")
	}
	return &wallet, nil
}

func (s *GormWalletStore) GetActiveWallet(userID uuid.UUID, curve models.CurveType) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.First(&wallet, "user_id = ? AND curve_type = ? AND status = ?",
		userID, curve, models.WalletActive).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load active wallet row")
	}
	return &wallet, nil
}

func (s *GormWalletStore) GetWalletByPublicKey(publicKey string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.First(&wallet, "public_key = ?", publicKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load wallet by public key")
	}
	return &wallet, nil
}

func (s *GormWalletStore) ListActiveWallets(userID uuid.UUID) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := s.db.Find(&wallets, "user_id = ? AND status = ?", userID, models.WalletActive).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list wallets")
	}
	return wallets, nil
}

// CreateWalletsWithCustody creates every wallet and its custody
// associations in one transaction: a keygen call's wallets commit together
// or not at all, and a wallet without custody rows is never observable.
func (s *GormWalletStore) CreateWalletsWithCustody(provisions []engine.WalletProvision) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range provisions {
			if err := tx.Create(p.Wallet).Error; err != nil {
				return errors.Wrap(err, "failed to create wallet row")
			}
			for i := range p.CustodyRows {
				if err := tx.Create(&p.CustodyRows[i]).Error; err != nil {
					return errors.Wrapf(err, "failed to create custody row for node %s", p.CustodyRows[i].NodeID)
				}
			}
		}
		return nil
	})
}

func (s *GormWalletStore) UpdateWalletShare(walletID uuid.UUID, encryptedShare []byte) error {
	result := s.db.Model(&models.Wallet{}).Where("id = ?", walletID).
		Update("encrypted_share", encryptedShare)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update wallet share")
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("wallet %s not found", walletID)
	}
	return nil
}

func (s *GormWalletStore) UpdateWalletThreshold(walletID uuid.UUID, threshold int) error {
	result := s.db.Model(&models.Wallet{}).Where("id = ?", walletID).
		Update("sss_threshold", threshold)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update wallet threshold")
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("wallet %s not found", walletID)
	}
	return nil
}
