package engine

import (
	"context"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/frost"
	"tss-custody/internal/logger"
	"tss-custody/internal/sss"
	"tss-custody/internal/storage/models"
)

// KeygenCurveInput is one curve's key material in a keygen request. The
// client generates both halves locally and uploads the server's secret
// share together with its own public share point; the client's secret never
// reaches this service.
type KeygenCurveInput struct {
	CurveType         models.CurveType
	ClientPublicShare []byte
	ServerSecretShare []byte
}

// KeygenRequest provisions one or two wallets (one per curve) in one call.
type KeygenRequest struct {
	CustomerID string
	Curves     []KeygenCurveInput
}

// KeygenWalletResult describes one provisioned wallet.
type KeygenWalletResult struct {
	WalletID  uuid.UUID        `json:"walletId"`
	CurveType models.CurveType `json:"curveType"`
	PublicKey string           `json:"publicKey"`
}

// KeygenResult is the outcome of a keygen call.
type KeygenResult struct {
	SessionID uuid.UUID            `json:"sessionId"`
	Wallets   []KeygenWalletResult `json:"wallets"`
}

// Keygen resolves or creates the user, provisions a wallet per requested
// curve, and distributes Shamir fragments of each server share across the
// reachable custodian fleet. Every curve's guards run before anything
// commits, then all wallet and custody rows commit in one transaction: a
// second curve failing can never leave the first curve's wallet behind.
// Fleet distribution happens after the commit with per-node failure
// domains, recorded as NOT_REGISTERED custody rows for resharing to
// reconcile.
func (e *Engine) Keygen(ctx context.Context, identity Identity, req KeygenRequest) (*KeygenResult, error) {
	if len(req.Curves) < 1 || len(req.Curves) > 2 {
		return nil, apperrors.New(apperrors.CodeInvalidSession, "keygen requires one or two curves, got %d", len(req.Curves))
	}
	if len(req.Curves) == 2 && req.Curves[0].CurveType == req.Curves[1].CurveType {
		return nil, apperrors.New(apperrors.CodeInvalidSession, "keygen curves must be distinct")
	}

	user, err := e.resolveOrCreateUser(identity)
	if err != nil {
		return nil, err
	}

	threshold, err := e.catalog.CurrentThreshold()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read sss threshold")
	}
	activeNodes, err := e.catalog.ListActiveNodes()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list custodian nodes")
	}

	prepared := make([]preparedCurve, 0, len(req.Curves))
	for _, input := range req.Curves {
		pc, err := e.prepareKeygenCurve(ctx, identity, user, req.CustomerID, input, threshold, activeNodes)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, *pc)
	}

	provisions := make([]WalletProvision, len(prepared))
	for i, pc := range prepared {
		provisions[i] = pc.provision
	}
	if err := e.wallets.CreateWalletsWithCustody(provisions); err != nil {
		return nil, apperrors.Wrap(err, "failed to create wallets")
	}

	result := &KeygenResult{}
	var curves []models.CurveType
	var publicKeys []string
	for _, pc := range prepared {
		// Fleet distribution is deliberately outside the wallet transaction:
		// each node is its own failure domain, and a failed write becomes a
		// NOT_REGISTERED row for the resharing protocol to reconcile.
		outcomes := custody.RegisterFleet(ctx, e.fleet, pc.usable, pc.shareID, pc.fragments)
		e.recordWriteOutcomes(pc.provision.Wallet.ID, outcomes)
		logger.Log.Infof("Provisioned %s wallet %s across %d custodian nodes",
			pc.result.CurveType, pc.result.WalletID, len(pc.usable))

		result.Wallets = append(result.Wallets, pc.result)
		curves = append(curves, pc.result.CurveType)
		publicKeys = append(publicKeys, pc.result.PublicKey)
	}

	// Record the operation as a completed KEYGEN session for the audit
	// trail. The wallets themselves committed above.
	data, err := encodeStagePayload(e.cipher, &stagePayload{
		StageType: models.StageKeygen,
		Keygen:    &keygenStageData{Curves: curves, PublicKeys: publicKeys},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode keygen stage data")
	}
	err = e.sessions.InTx(func(s SessionStore) error {
		session, err := s.CreateSession(result.Wallets[0].WalletID, req.CustomerID)
		if err != nil {
			return apperrors.Wrap(err, "failed to create keygen session")
		}
		if _, err := s.CreateStage(session.ID, models.StageKeygen, models.StageCompleted, data); err != nil {
			return apperrors.Wrap(err, "failed to create keygen stage")
		}
		if err := s.SetSessionState(session.ID, models.SessionCompleted); err != nil {
			return apperrors.Wrap(err, "failed to complete keygen session")
		}
		result.SessionID = session.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// preparedCurve is one curve's fully guarded, ready-to-commit key material.
type preparedCurve struct {
	result    KeygenWalletResult
	provision WalletProvision
	shareID   custody.ShareIdentity
	usable    []models.KeyShareNode
	fragments map[uuid.UUID][]byte
}

// prepareKeygenCurve runs every guard for one curve and assembles its
// wallet, custody rows and fleet fragments without writing anything.
func (e *Engine) prepareKeygenCurve(ctx context.Context, identity Identity, user *models.User, customerID string, input KeygenCurveInput, threshold int, activeNodes []models.KeyShareNode) (*preparedCurve, error) {
	existing, err := e.wallets.GetActiveWallet(user.ID, input.CurveType)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to check existing wallet")
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeWalletAlreadyExists,
			"user already has an active %s wallet", input.CurveType)
	}

	provider, err := frost.ProviderFor(input.CurveType)
	if err != nil {
		return nil, apperrors.Wrap(err, "no protocol provider for curve")
	}
	jointPub, err := provider.JointPublicKey(input.ClientPublicShare, input.ServerSecretShare)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to derive joint public key")
	}
	publicKey := hex.EncodeToString(jointPub)

	collision, err := e.wallets.GetWalletByPublicKey(publicKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to check public key collision")
	}
	if collision != nil {
		return nil, apperrors.New(apperrors.CodeDuplicatePublicKey,
			"public key %s already belongs to a wallet", publicKey)
	}

	wallet := &models.Wallet{
		ID:                uuid.New(),
		UserID:            user.ID,
		CustomerID:        customerID,
		CurveType:         input.CurveType,
		PublicKey:         publicKey,
		Status:            models.WalletActive,
		SSSThreshold:      threshold,
		ClientPublicShare: hex.EncodeToString(input.ClientPublicShare),
	}

	shareID := custody.ShareIdentity{
		UserAuthID: identity.AuthID,
		AuthType:   identity.AuthType,
		CurveType:  input.CurveType,
		PublicKey:  publicKey,
	}

	// Only nodes that answer a coverage check can custody a fragment.
	usable := usableNodes(custody.CheckFleet(ctx, e.fleet, activeNodes, shareID))
	if len(usable) == 0 {
		return nil, apperrors.New(apperrors.CodeNodeInsufficient,
			"no custodian node can hold a %s share", input.CurveType)
	}

	kp := &frost.KeyPackage{
		Identifier:  frost.ServerIdentifier,
		SecretShare: input.ServerSecretShare,
		PublicKey:   jointPub,
		CurveType:   input.CurveType,
	}
	wallet.EncryptedShare, err = e.encryptKeyPackage(kp)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encrypt server key package")
	}

	fragments, err := e.splitShare(input.CurveType, input.ServerSecretShare, threshold, usable)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to split server share")
	}

	custodyRows := make([]models.WalletKSNode, len(usable))
	for i, node := range usable {
		custodyRows[i] = models.WalletKSNode{
			ID:       uuid.New(),
			WalletID: wallet.ID,
			NodeID:   node.ID,
			Status:   models.WalletNodeActive,
		}
	}

	return &preparedCurve{
		result:    KeygenWalletResult{WalletID: wallet.ID, CurveType: input.CurveType, PublicKey: publicKey},
		provision: WalletProvision{Wallet: wallet, CustodyRows: custodyRows},
		shareID:   shareID,
		usable:    usable,
		fragments: fragments,
	}, nil
}

// splitShare Shamir-splits a serialized secret share, one fragment per
// node, CBOR-encoded for transport.
func (e *Engine) splitShare(curve models.CurveType, secretShare []byte, threshold int, nodes []models.KeyShareNode) (map[uuid.UUID][]byte, error) {
	order, err := frost.CurveOrder(curve)
	if err != nil {
		return nil, err
	}
	fieldBytes, err := frost.ShareToFieldBytes(curve, secretShare)
	if err != nil {
		return nil, err
	}
	fragments, err := sss.Split(fieldBytes, threshold, len(nodes), order)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]byte, len(nodes))
	for i, node := range nodes {
		encoded, err := cbor.Marshal(fragments[i])
		if err != nil {
			return nil, err
		}
		out[node.ID] = encoded
	}
	return out, nil
}

func (e *Engine) recordWriteOutcomes(walletID uuid.UUID, outcomes []custody.WriteOutcome) {
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			continue
		}
		row := &models.WalletKSNode{
			WalletID: walletID,
			NodeID:   outcome.Node.ID,
			Status:   models.WalletNodeNotRegistered,
		}
		if err := e.catalog.UpsertWalletNode(row); err != nil {
			logger.Log.Errorf("Failed to record custody outcome for node %s: %v", outcome.Node.NodeID, err)
		}
	}
}

func (e *Engine) resolveOrCreateUser(identity Identity) (*models.User, error) {
	user, err := e.wallets.GetUser(identity.AuthID, identity.AuthType)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to look up user")
	}
	if user != nil {
		return user, nil
	}
	user = &models.User{ID: uuid.New(), AuthID: identity.AuthID, AuthType: identity.AuthType}
	if err := e.wallets.CreateUser(user); err != nil {
		return nil, apperrors.Wrap(err, "failed to create user")
	}
	return user, nil
}

func usableNodes(outcomes []custody.CheckOutcome) []models.KeyShareNode {
	var usable []models.KeyShareNode
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			usable = append(usable, outcome.Node)
		}
	}
	return usable
}
