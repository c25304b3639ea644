package engine

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/storage/models"
)

// In-memory store fakes with the same contracts as the gorm stores: absent
// rows read as (nil, nil), SetSessionState only succeeds from IN_PROGRESS.

type memSessionStore struct {
	sessions map[uuid.UUID]*models.TssSession
	stages   map[uuid.UUID]*models.TssStage
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions: make(map[uuid.UUID]*models.TssSession),
		stages:   make(map[uuid.UUID]*models.TssStage),
	}
}

func (s *memSessionStore) CreateSession(walletID uuid.UUID, customerID string) (*models.TssSession, error) {
	session := &models.TssSession{
		ID:         uuid.New(),
		WalletID:   walletID,
		CustomerID: customerID,
		State:      models.SessionInProgress,
	}
	s.sessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (s *memSessionStore) GetSession(sessionID uuid.UUID) (*models.TssSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *memSessionStore) GetStage(sessionID uuid.UUID, stageType models.StageType) (*models.TssStage, error) {
	for _, stage := range s.stages {
		if stage.SessionID == sessionID && stage.StageType == stageType {
			copied := *stage
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memSessionStore) CreateStage(sessionID uuid.UUID, stageType models.StageType, status models.StageStatus, data []byte) (*models.TssStage, error) {
	if existing, _ := s.GetStage(sessionID, stageType); existing != nil {
		return nil, errors.Errorf("stage %s already exists for session %s", stageType, sessionID)
	}
	stage := &models.TssStage{
		ID:          uuid.New(),
		SessionID:   sessionID,
		StageType:   stageType,
		StageStatus: status,
		StageData:   data,
	}
	s.stages[stage.ID] = stage
	copied := *stage
	return &copied, nil
}

func (s *memSessionStore) AdvanceStage(stageID uuid.UUID, status models.StageStatus, data []byte) error {
	stage, ok := s.stages[stageID]
	if !ok {
		return errors.Errorf("no stage %s", stageID)
	}
	stage.StageStatus = status
	stage.StageData = data
	return nil
}

func (s *memSessionStore) SetSessionState(sessionID uuid.UUID, state models.SessionState) error {
	session, ok := s.sessions[sessionID]
	if !ok || session.State != models.SessionInProgress {
		return errors.Errorf("session %s is not in progress", sessionID)
	}
	session.State = state
	return nil
}

func (s *memSessionStore) InTx(fn func(SessionStore) error) error {
	return fn(s)
}

type memWalletStore struct {
	users   map[uuid.UUID]*models.User
	wallets map[uuid.UUID]*models.Wallet
	catalog *memCustodyStore
}

func newMemWalletStore(catalog *memCustodyStore) *memWalletStore {
	return &memWalletStore{
		users:   make(map[uuid.UUID]*models.User),
		wallets: make(map[uuid.UUID]*models.Wallet),
		catalog: catalog,
	}
}

func (s *memWalletStore) GetUser(authID string, authType models.AuthType) (*models.User, error) {
	for _, u := range s.users {
		if u.AuthID == authID && u.AuthType == authType {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memWalletStore) GetUserByID(userID uuid.UUID) (*models.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *memWalletStore) CreateUser(user *models.User) error {
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *memWalletStore) GetWallet(walletID uuid.UUID) (*models.Wallet, error) {
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

func (s *memWalletStore) GetActiveWallet(userID uuid.UUID, curve models.CurveType) (*models.Wallet, error) {
	for _, w := range s.wallets {
		if w.UserID == userID && w.CurveType == curve && w.Status == models.WalletActive {
			copied := *w
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memWalletStore) GetWalletByPublicKey(publicKey string) (*models.Wallet, error) {
	for _, w := range s.wallets {
		if w.PublicKey == publicKey {
			copied := *w
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memWalletStore) ListActiveWallets(userID uuid.UUID) ([]models.Wallet, error) {
	var out []models.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID && w.Status == models.WalletActive {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s *memWalletStore) CreateWalletsWithCustody(provisions []WalletProvision) error {
	for _, p := range provisions {
		copied := *p.Wallet
		s.wallets[p.Wallet.ID] = &copied
		for i := range p.CustodyRows {
			row := p.CustodyRows[i]
			if err := s.catalog.UpsertWalletNode(&row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *memWalletStore) UpdateWalletShare(walletID uuid.UUID, encryptedShare []byte) error {
	w, ok := s.wallets[walletID]
	if !ok {
		return errors.Errorf("no wallet %s", walletID)
	}
	w.EncryptedShare = encryptedShare
	return nil
}

func (s *memWalletStore) UpdateWalletThreshold(walletID uuid.UUID, threshold int) error {
	w, ok := s.wallets[walletID]
	if !ok {
		return errors.Errorf("no wallet %s", walletID)
	}
	w.SSSThreshold = threshold
	return nil
}

type walletNodeKey struct {
	walletID uuid.UUID
	nodeID   uuid.UUID
}

type memCustodyStore struct {
	nodes     []models.KeyShareNode
	rows      map[walletNodeKey]*models.WalletKSNode
	threshold int
}

func newMemCustodyStore(threshold int) *memCustodyStore {
	return &memCustodyStore{
		rows:      make(map[walletNodeKey]*models.WalletKSNode),
		threshold: threshold,
	}
}

func (s *memCustodyStore) addNode() models.KeyShareNode {
	node := models.KeyShareNode{
		ID:     uuid.New(),
		NodeID: uuid.NewString(),
		Status: models.NodeActive,
	}
	s.nodes = append(s.nodes, node)
	return node
}

func (s *memCustodyStore) ListActiveNodes() ([]models.KeyShareNode, error) {
	out := make([]models.KeyShareNode, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func (s *memCustodyStore) ListWalletNodes(walletID uuid.UUID) ([]models.WalletKSNode, error) {
	var out []models.WalletKSNode
	for _, row := range s.rows {
		if row.WalletID == walletID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memCustodyStore) UpsertWalletNode(row *models.WalletKSNode) error {
	key := walletNodeKey{walletID: row.WalletID, nodeID: row.NodeID}
	if existing, ok := s.rows[key]; ok {
		existing.Status = row.Status
		return nil
	}
	copied := *row
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	s.rows[key] = &copied
	return nil
}

func (s *memCustodyStore) CurrentThreshold() (int, error) {
	return s.threshold, nil
}

func (s *memCustodyStore) rowStatus(walletID, nodeID uuid.UUID) (models.WalletNodeStatus, bool) {
	row, ok := s.rows[walletNodeKey{walletID: walletID, nodeID: nodeID}]
	if !ok {
		return "", false
	}
	return row.Status, true
}

// memFleet is an in-process custodian fleet with per-node failure switches.
// It is safe for the engine's parallel fan-out.
type memFleet struct {
	mu        sync.Mutex
	fragments map[uuid.UUID]map[custody.ShareIdentity][]byte
	down      map[uuid.UUID]bool // every call fails
	failWrite map[uuid.UUID]bool // Register/Reshare fail, reads work
	lost      map[uuid.UUID]bool // stored fragment is gone
}

func newMemFleet() *memFleet {
	return &memFleet{
		fragments: make(map[uuid.UUID]map[custody.ShareIdentity][]byte),
		down:      make(map[uuid.UUID]bool),
		failWrite: make(map[uuid.UUID]bool),
		lost:      make(map[uuid.UUID]bool),
	}
}

func (f *memFleet) nodeFragments(nodeID uuid.UUID) map[custody.ShareIdentity][]byte {
	m, ok := f.fragments[nodeID]
	if !ok {
		m = make(map[custody.ShareIdentity][]byte)
		f.fragments[nodeID] = m
	}
	return m
}

func (f *memFleet) Register(ctx context.Context, node models.KeyShareNode, identity custody.ShareIdentity, fragment []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node.ID] || f.failWrite[node.ID] {
		return errors.Errorf("node %s unreachable", node.NodeID)
	}
	m := f.nodeFragments(node.ID)
	if _, ok := m[identity]; ok {
		return apperrors.New(apperrors.CodeDuplicatePublicKey, "share exists on node %s", node.NodeID)
	}
	m[identity] = fragment
	return nil
}

func (f *memFleet) Get(ctx context.Context, node models.KeyShareNode, identity custody.ShareIdentity) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node.ID] {
		return nil, errors.Errorf("node %s unreachable", node.NodeID)
	}
	fragment, ok := f.nodeFragments(node.ID)[identity]
	if !ok || f.lost[node.ID] {
		return nil, apperrors.New(apperrors.CodeKeyShareNotFound, "no share on node %s", node.NodeID)
	}
	return fragment, nil
}

func (f *memFleet) Check(ctx context.Context, node models.KeyShareNode, identity custody.ShareIdentity) (*custody.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node.ID] {
		return nil, errors.Errorf("node %s unreachable", node.NodeID)
	}
	fragment, ok := f.nodeFragments(node.ID)[identity]
	if !ok || f.lost[node.ID] {
		return &custody.CheckResult{Exists: false}, nil
	}
	sum := blake3.Sum256(fragment)
	return &custody.CheckResult{Exists: true, Fingerprint: hex.EncodeToString(sum[:])}, nil
}

func (f *memFleet) Reshare(ctx context.Context, node models.KeyShareNode, identity custody.ShareIdentity, fragment []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node.ID] || f.failWrite[node.ID] {
		return errors.Errorf("node %s unreachable", node.NodeID)
	}
	delete(f.lost, node.ID)
	f.nodeFragments(node.ID)[identity] = fragment
	return nil
}

func (f *memFleet) holds(nodeID uuid.UUID, identity custody.ShareIdentity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodeFragments(nodeID)[identity]
	return ok && !f.lost[nodeID]
}
