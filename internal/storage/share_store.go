package storage

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tss-custody/internal/custody"
	"tss-custody/internal/storage/models"
)

// GormShareStore is a custodian node's local ShareStore on gorm.
type GormShareStore struct {
	db *gorm.DB
}

// NewShareStore creates a node-local share store over a gorm handle.
func NewShareStore(db *gorm.DB) *GormShareStore {
	return &GormShareStore{db: db}
}

func (s *GormShareStore) Get(identity custody.ShareIdentity) (*models.StoredShare, error) {
	var share models.StoredShare
	err := s.db.First(&share,
		"user_auth_id = ? AND auth_type = ? AND curve_type = ? AND public_key = ?",
		identity.UserAuthID, identity.AuthType, identity.CurveType, identity.PublicKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load stored share")
	}
	return &share, nil
}

func (s *GormShareStore) Create(share *models.StoredShare) error {
	if share.ID == uuid.Nil {
		share.ID = uuid.New()
	}
	return errors.Wrap(s.db.Create(share).Error, "failed to create stored share")
}

// Upsert overwrites the encrypted fragment for an identity key, creating
// the row if it does not exist.
func (s *GormShareStore) Upsert(share *models.StoredShare) error {
	if share.ID == uuid.Nil {
		share.ID = uuid.New()
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_auth_id"}, {Name: "auth_type"},
			{Name: "curve_type"}, {Name: "public_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"encrypted_share", "updated_at"}),
	}).Create(share).Error
	return errors.Wrap(err, "failed to upsert stored share")
}
