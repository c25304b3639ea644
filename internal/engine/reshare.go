package engine

import (
	"context"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/frost"
	"tss-custody/internal/logger"
	"tss-custody/internal/sss"
	"tss-custody/internal/storage/models"
)

// EvaluateWallet answers whether a wallet needs resharing and whether it is
// below its safe operating threshold, from a snapshot of the current
// catalog and custody set.
func (e *Engine) EvaluateWallet(walletID uuid.UUID) (*custody.Evaluation, error) {
	wallet, err := e.wallets.GetWallet(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, apperrors.New(apperrors.CodeWalletNotFound, "no wallet %s", walletID)
	}
	custodyRows, err := e.catalog.ListWalletNodes(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load custody set")
	}
	activeNodes, err := e.catalog.ListActiveNodes()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list custodian nodes")
	}
	eval := custody.Evaluate(wallet, custodyRows, activeNodes)
	return &eval, nil
}

// Reshare redistributes a wallet's server share across the current fleet if
// the registry says it is needed. The secret and public key never change;
// only the fragment set does. Per-node write failures surface as
// NOT_REGISTERED custody rows, not a rollback.
func (e *Engine) Reshare(ctx context.Context, walletID uuid.UUID) (*custody.Evaluation, error) {
	wallet, err := e.wallets.GetWallet(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, apperrors.New(apperrors.CodeWalletNotFound, "no wallet %s", walletID)
	}
	user, err := e.userForWallet(wallet)
	if err != nil {
		return nil, err
	}

	eval, err := e.EvaluateWallet(walletID)
	if err != nil {
		return nil, err
	}
	if !eval.NeedsReshare {
		return eval, nil
	}
	logger.Log.Infof("Resharing wallet %s: %v", walletID, eval.Reasons)

	kp, err := e.decryptKeyPackage(wallet)
	if err != nil {
		// The local copy is unusable; rebuild it from the fleet first.
		logger.Log.Warnf("Server share for wallet %s unreadable, recovering from fleet: %v", walletID, err)
		kp, err = e.RecoverServerShare(ctx, walletID)
		if err != nil {
			return nil, err
		}
	}

	threshold, err := e.catalog.CurrentThreshold()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read sss threshold")
	}
	activeNodes, err := e.catalog.ListActiveNodes()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list custodian nodes")
	}
	shareID := custody.ShareIdentity{
		UserAuthID: user.AuthID,
		AuthType:   user.AuthType,
		CurveType:  wallet.CurveType,
		PublicKey:  wallet.PublicKey,
	}
	usable := usableNodes(custody.CheckFleet(ctx, e.fleet, activeNodes, shareID))
	if len(usable) == 0 {
		return nil, apperrors.New(apperrors.CodeNodeInsufficient, "no custodian node reachable for resharing")
	}

	fragments, err := e.splitShare(wallet.CurveType, kp.SecretShare, threshold, usable)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to split server share")
	}

	outcomes := custody.ReshareFleet(ctx, e.fleet, usable, shareID, fragments)
	for _, outcome := range outcomes {
		status := models.WalletNodeActive
		if outcome.Err != nil {
			status = models.WalletNodeNotRegistered
		}
		row := &models.WalletKSNode{WalletID: wallet.ID, NodeID: outcome.Node.ID, Status: status}
		if err := e.catalog.UpsertWalletNode(row); err != nil {
			logger.Log.Errorf("Failed to record reshare outcome for node %s: %v", outcome.Node.NodeID, err)
		}
	}
	if threshold != wallet.SSSThreshold {
		if err := e.wallets.UpdateWalletThreshold(wallet.ID, threshold); err != nil {
			return nil, apperrors.Wrap(err, "failed to update wallet threshold")
		}
	}
	return eval, nil
}

// RecoverServerShare rebuilds a wallet's server-side key share from
// custodian fragments. It needs at least the wallet's own threshold of
// fragments, verifies the rebuilt scalar against the wallet public key
// before trusting it, and restores the wallet's encrypted share.
func (e *Engine) RecoverServerShare(ctx context.Context, walletID uuid.UUID) (*frost.KeyPackage, error) {
	wallet, err := e.wallets.GetWallet(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, apperrors.New(apperrors.CodeWalletNotFound, "no wallet %s", walletID)
	}
	user, err := e.userForWallet(wallet)
	if err != nil {
		return nil, err
	}
	custodyRows, err := e.catalog.ListWalletNodes(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load custody set")
	}
	activeNodes, err := e.catalog.ListActiveNodes()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list custodian nodes")
	}

	nodesByID := make(map[uuid.UUID]models.KeyShareNode, len(activeNodes))
	for _, n := range activeNodes {
		nodesByID[n.ID] = n
	}
	var holders []models.KeyShareNode
	for _, row := range custodyRows {
		if row.Status != models.WalletNodeActive {
			continue
		}
		if node, ok := nodesByID[row.NodeID]; ok {
			holders = append(holders, node)
		}
	}

	shareID := custody.ShareIdentity{
		UserAuthID: user.AuthID,
		AuthType:   user.AuthType,
		CurveType:  wallet.CurveType,
		PublicKey:  wallet.PublicKey,
	}
	outcomes := custody.FetchFragments(ctx, e.fleet, holders, shareID)

	var fragments []sss.Fragment
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			// A holder that no longer has the fragment has lost data; that
			// state feeds the next resharing evaluation.
			if apperrors.CodeOf(outcome.Err) == apperrors.CodeKeyShareNotFound {
				row := &models.WalletKSNode{WalletID: wallet.ID, NodeID: outcome.Node.ID, Status: models.WalletNodeDataLoss}
				if upsertErr := e.catalog.UpsertWalletNode(row); upsertErr != nil {
					logger.Log.Errorf("Failed to mark data loss on node %s: %v", outcome.Node.NodeID, upsertErr)
				}
			}
			continue
		}
		var fragment sss.Fragment
		if err := cbor.Unmarshal(outcome.Fragment, &fragment); err != nil {
			logger.Log.Warnf("Node %s returned an undecodable fragment: %v", outcome.Node.NodeID, err)
			continue
		}
		fragments = append(fragments, fragment)
	}
	if len(fragments) < wallet.SSSThreshold {
		return nil, apperrors.New(apperrors.CodeNodeInsufficient,
			"recovered %d fragments, need %d", len(fragments), wallet.SSSThreshold)
	}

	order, err := frost.CurveOrder(wallet.CurveType)
	if err != nil {
		return nil, apperrors.Wrap(err, "no curve order for wallet curve")
	}
	fieldBytes, err := sss.Combine(fragments, wallet.SSSThreshold, order)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to combine fragments")
	}
	secretShare, err := frost.FieldBytesToShare(wallet.CurveType, fieldBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decode combined share")
	}

	// Never trust a reconstruction blindly: the rebuilt scalar plus the
	// client's public share must reproduce the wallet's public key.
	provider, err := frost.ProviderFor(wallet.CurveType)
	if err != nil {
		return nil, apperrors.Wrap(err, "no protocol provider for wallet curve")
	}
	clientPub, err := hex.DecodeString(wallet.ClientPublicShare)
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid stored client public share")
	}
	jointPub, err := provider.JointPublicKey(clientPub, secretShare)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to derive joint public key")
	}
	if hex.EncodeToString(jointPub) != wallet.PublicKey {
		return nil, apperrors.Wrap(errors.New("public key mismatch"), "reconstructed share failed verification")
	}

	kp := &frost.KeyPackage{
		Identifier:  frost.ServerIdentifier,
		SecretShare: secretShare,
		PublicKey:   jointPub,
		CurveType:   wallet.CurveType,
	}
	encrypted, err := e.encryptKeyPackage(kp)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to re-encrypt server key package")
	}
	if err := e.wallets.UpdateWalletShare(wallet.ID, encrypted); err != nil {
		return nil, apperrors.Wrap(err, "failed to restore wallet share")
	}
	logger.Log.Infof("Recovered server share for wallet %s from %d fragments", wallet.ID, len(fragments))
	return kp, nil
}

func (e *Engine) userForWallet(wallet *models.Wallet) (*models.User, error) {
	user, err := e.wallets.GetUserByID(wallet.UserID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load wallet owner")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeUserNotFound, "wallet %s has no owner row", wallet.ID)
	}
	return user, nil
}
