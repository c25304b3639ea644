package storage

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tss-custody/internal/config"
	"tss-custody/internal/logger"
	"tss-custody/internal/storage/models"
)

// GormCustodyStore implements the engine's CustodyStore on gorm.
type GormCustodyStore struct {
	db *gorm.DB
}

// NewCustodyStore creates a custody store over a gorm handle.
func NewCustodyStore(db *gorm.DB) *GormCustodyStore {
	return &GormCustodyStore{db: db}
}

func (s *GormCustodyStore) ListActiveNodes() ([]models.KeyShareNode, error) {
	var nodes []models.KeyShareNode
	err := s.db.Find(&nodes, "status = ?", models.NodeActive).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list custodian nodes")
	}
	return nodes, nil
}

func (s *GormCustodyStore) ListWalletNodes(walletID uuid.UUID) ([]models.WalletKSNode, error) {
	var rows []models.WalletKSNode
	err := s.db.Find(&rows, "wallet_id = ?", walletID).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list custody rows")
	}
	return rows, nil
}

// UpsertWalletNode inserts the row or, when the (wallet, node) pair already
// exists, updates its status. Custody rows are never physically removed.
func (s *GormCustodyStore) UpsertWalletNode(row *models.WalletKSNode) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_id"}, {Name: "node_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(row).Error
	return errors.Wrap(err, "failed to upsert custody row")
}

func (s *GormCustodyStore) CurrentThreshold() (int, error) {
	var meta models.KeyShareNodeMeta
	if err := s.db.First(&meta).Error; err != nil {
		return 0, errors.Wrap(err, "failed to load key-share node meta")
	}
	return meta.SSSThreshold, nil
}

// SeedCatalog reconciles the fleet catalog and the global threshold record
// with the configuration at startup.
func SeedCatalog(db *gorm.DB, cfg *config.Config) error {
	for _, entry := range cfg.CustodianFleet {
		node := models.KeyShareNode{
			ID:        uuid.New(),
			NodeID:    entry.NodeID,
			ServerURL: entry.ServerURL,
			Status:    models.NodeActive,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "node_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"server_url", "status", "updated_at"}),
		}).Create(&node).Error
		if err != nil {
			return errors.Wrapf(err, "failed to seed custodian node %s", entry.NodeID)
		}
	}

	var meta models.KeyShareNodeMeta
	err := db.First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = models.KeyShareNodeMeta{SSSThreshold: cfg.SSSThreshold}
		if err := db.Create(&meta).Error; err != nil {
			return errors.Wrap(err, "failed to create key-share node meta")
		}
	} else if err != nil {
		return errors.Wrap(err, "failed to load key-share node meta")
	} else if meta.SSSThreshold != cfg.SSSThreshold {
		if err := db.Model(&meta).Update("sss_threshold", cfg.SSSThreshold).Error; err != nil {
			return errors.Wrap(err, "failed to update sss threshold")
		}
	}

	logger.Log.Infof("Custody catalog seeded with %d nodes, threshold %d", len(cfg.CustodianFleet), cfg.SSSThreshold)
	return nil
}
