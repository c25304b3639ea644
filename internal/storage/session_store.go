package storage

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tss-custody/internal/engine"
	"tss-custody/internal/storage/models"
)

// GormSessionStore implements the engine's SessionStore on gorm. Inside an
// InTx closure every method runs on the same transaction; session reads take
// a row lock so concurrent round/abort calls on the same session serialize
// and the loser observes the winner's state.
type GormSessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a session store over a gorm handle.
func NewSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) CreateSession(walletID uuid.UUID, customerID string) (*models.TssSession, error) {
	session := &models.TssSession{
		ID:         uuid.New(),
		WalletID:   walletID,
		CustomerID: customerID,
		State:      models.SessionInProgress,
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create session row")
	}
	return session, nil
}

func (s *GormSessionStore) GetSession(sessionID uuid.UUID) (*models.TssSession, error) {
	var session models.TssSession
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session row")
	}
	return &session, nil
}

func (s *GormSessionStore) GetStage(sessionID uuid.UUID, stageType models.StageType) (*models.TssStage, error) {
	var stage models.TssStage
	err := s.db.First(&stage, "session_id = ? AND stage_type = ?", sessionID, stageType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load stage row")
	}
	return &stage, nil
}

func (s *GormSessionStore) CreateStage(sessionID uuid.UUID, stageType models.StageType, status models.StageStatus, data []byte) (*models.TssStage, error) {
	stage := &models.TssStage{
		ID:          uuid.New(),
		SessionID:   sessionID,
		StageType:   stageType,
		StageStatus: status,
		StageData:   data,
	}
	if err := s.db.Create(stage).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create stage row")
	}
	return stage, nil
}

func (s *GormSessionStore) AdvanceStage(stageID uuid.UUID, status models.StageStatus, data []byte) error {
	result := s.db.Model(&models.TssStage{}).
		Where("id = ?", stageID).
		Updates(map[string]interface{}{"stage_status": status, "stage_data": data})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to advance stage row")
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("stage %s not found", stageID)
	}
	return nil
}

// SetSessionState only succeeds from IN_PROGRESS; terminal states never
// change again. A zero-row update means a concurrent transition won.
func (s *GormSessionStore) SetSessionState(sessionID uuid.UUID, state models.SessionState) error {
	result := s.db.Model(&models.TssSession{}).
		Where("id = ? AND state = ?", sessionID, models.SessionInProgress).
		Update("state", state)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update session state")
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("session %s is not in progress", sessionID)
	}
	return nil
}

func (s *GormSessionStore) InTx(fn func(engine.SessionStore) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormSessionStore{db: tx})
	})
}
