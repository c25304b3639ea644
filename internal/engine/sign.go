package engine

import (
	"github.com/google/uuid"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/frost"
	"tss-custody/internal/logger"
	"tss-custody/internal/storage/models"
)

// SignRound1Request opens a signing session against one wallet.
type SignRound1Request struct {
	WalletID  uuid.UUID
	CurveType models.CurveType
	Message   []byte
}

// SignRound1Result carries the server's round-1 output back to the client.
type SignRound1Result struct {
	SessionID        uuid.UUID        `json:"sessionId"`
	ServerCommitment frost.Commitment `json:"serverCommitment"`
}

// SignRound1 authorizes the caller, generates the server's round-1
// commitment and persists a new IN_PROGRESS session with a SIGN stage in
// ROUND_1. The stage data holds the commitment and the one-time nonce
// material needed by round 2.
func (e *Engine) SignRound1(identity Identity, req SignRound1Request) (*SignRound1Result, error) {
	user, err := e.requireUser(identity)
	if err != nil {
		return nil, err
	}
	wallet, err := e.authorizeWallet(user, req.WalletID, req.CurveType)
	if err != nil {
		return nil, err
	}

	kp, err := e.decryptKeyPackage(wallet)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load server key package")
	}
	provider, err := frost.ProviderFor(wallet.CurveType)
	if err != nil {
		return nil, apperrors.Wrap(err, "no protocol provider for wallet curve")
	}
	commitment, nonces, err := provider.Round1(kp)
	if err != nil {
		return nil, apperrors.Wrap(err, "round-1 commitment generation failed")
	}

	data, err := encodeStagePayload(e.cipher, &stagePayload{
		StageType: models.StageSign,
		Sign: &signStageData{
			Message:          req.Message,
			CurveType:        wallet.CurveType,
			ServerCommitment: *commitment,
			ServerNonces:     nonces,
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode sign stage data")
	}

	var result *SignRound1Result
	err = e.sessions.InTx(func(s SessionStore) error {
		session, err := s.CreateSession(wallet.ID, wallet.CustomerID)
		if err != nil {
			return apperrors.Wrap(err, "failed to create session")
		}
		if _, err := s.CreateStage(session.ID, models.StageSign, models.StageRound1, data); err != nil {
			return apperrors.Wrap(err, "failed to create sign stage")
		}
		result = &SignRound1Result{SessionID: session.ID, ServerCommitment: *commitment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Opened signing session %s for wallet %s", result.SessionID, wallet.ID)
	return result, nil
}

// SignRound2Request completes a signing session.
type SignRound2Request struct {
	SessionID        uuid.UUID
	ClientCommitment frost.Commitment
}

// SignRound2Result carries the server's signature share. The client combines
// it with its own share and aggregates.
type SignRound2Result struct {
	ServerShare      frost.SignatureShare `json:"serverShare"`
	ServerCommitment frost.Commitment     `json:"serverCommitment"`
}

// SignRound2 runs the server's round 2 and atomically completes both the
// stage and the session. Every guard failure returns INVALID_TSS_SESSION
// before any mutation: this is the duplicate-call and replay protection,
// and the storage transaction makes concurrent racers lose cleanly.
func (e *Engine) SignRound2(identity Identity, req SignRound2Request) (*SignRound2Result, error) {
	user, err := e.requireUser(identity)
	if err != nil {
		return nil, err
	}
	if len(req.ClientCommitment.Identifier) == 0 ||
		req.ClientCommitment.Identifier[0] == frost.ServerIdentifier[0] {
		return nil, apperrors.New(apperrors.CodeInvalidSession, "client commitment carries an invalid identifier")
	}

	var result *SignRound2Result
	err = e.sessions.InTx(func(s SessionStore) error {
		session, err := s.GetSession(req.SessionID)
		if err != nil {
			return apperrors.Wrap(err, "failed to load session")
		}
		if session == nil {
			return apperrors.New(apperrors.CodeSessionNotFound, "no session %s", req.SessionID)
		}
		wallet, err := e.wallets.GetWallet(session.WalletID)
		if err != nil {
			return apperrors.Wrap(err, "failed to load session wallet %s", session.WalletID)
		}
		if wallet == nil {
			// An integrity breach, not a transient failure: never retryable.
			return apperrors.New(apperrors.CodeWalletNotFound,
				"session %s references missing wallet %s", session.ID, session.WalletID)
		}
		if wallet.UserID != user.ID {
			return apperrors.New(apperrors.CodeUnauthorized, "caller does not own wallet %s", wallet.ID)
		}
		// Abort wins over any stage-level precondition.
		if session.State != models.SessionInProgress {
			return apperrors.New(apperrors.CodeInvalidSession, "session %s is %s", session.ID, session.State)
		}
		stage, err := s.GetStage(session.ID, models.StageSign)
		if err != nil {
			return apperrors.Wrap(err, "failed to load sign stage")
		}
		if stage == nil || stage.StageStatus != models.StageRound1 {
			return apperrors.New(apperrors.CodeInvalidSession, "session %s has no sign stage awaiting round 2", session.ID)
		}

		payload, err := decodeStagePayload(e.cipher, stage.StageData, models.StageSign)
		if err != nil {
			return apperrors.Wrap(err, "failed to load sign stage data")
		}
		if payload.Sign.ServerNonces == nil {
			return apperrors.New(apperrors.CodeInvalidSession, "session %s already consumed its nonces", session.ID)
		}
		kp, err := e.decryptKeyPackage(wallet)
		if err != nil {
			return apperrors.Wrap(err, "failed to load server key package")
		}
		provider, err := frost.ProviderFor(payload.Sign.CurveType)
		if err != nil {
			return apperrors.Wrap(err, "no protocol provider for wallet curve")
		}

		commitments := []frost.Commitment{req.ClientCommitment, payload.Sign.ServerCommitment}
		share, err := provider.Round2(payload.Sign.Message, kp, payload.Sign.ServerNonces, commitments)
		if err != nil {
			return apperrors.Wrap(err, "round-2 share generation failed")
		}

		// The nonces are single-use; drop them from the audit record.
		payload.Sign.ServerNonces = nil
		data, err := encodeStagePayload(e.cipher, payload)
		if err != nil {
			return apperrors.Wrap(err, "failed to re-encode sign stage data")
		}
		if err := s.AdvanceStage(stage.ID, models.StageCompleted, data); err != nil {
			return apperrors.Wrap(err, "failed to complete sign stage")
		}
		// Two-round protocol: the final round also completes the session.
		if err := s.SetSessionState(session.ID, models.SessionCompleted); err != nil {
			return apperrors.Wrap(err, "failed to complete session")
		}
		result = &SignRound2Result{ServerShare: *share, ServerCommitment: payload.Sign.ServerCommitment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("Completed signing session %s", req.SessionID)
	return result, nil
}

// AbortRequest aborts an in-progress session.
type AbortRequest struct {
	SessionID uuid.UUID
	WalletID  uuid.UUID
}

// Abort transitions an IN_PROGRESS session to ABORTED. Terminal sessions
// are immutable; a mismatched wallet id never silently succeeds.
func (e *Engine) Abort(identity Identity, req AbortRequest) error {
	user, err := e.requireUser(identity)
	if err != nil {
		return err
	}
	err = e.sessions.InTx(func(s SessionStore) error {
		session, err := s.GetSession(req.SessionID)
		if err != nil {
			return apperrors.Wrap(err, "failed to load session")
		}
		if session == nil {
			return apperrors.New(apperrors.CodeSessionNotFound, "no session %s", req.SessionID)
		}
		wallet, err := e.wallets.GetWallet(session.WalletID)
		if err != nil {
			return apperrors.Wrap(err, "failed to load session wallet %s", session.WalletID)
		}
		if wallet == nil {
			// An integrity breach, not a transient failure: never retryable.
			return apperrors.New(apperrors.CodeWalletNotFound,
				"session %s references missing wallet %s", session.ID, session.WalletID)
		}
		if wallet.UserID != user.ID {
			return apperrors.New(apperrors.CodeUnauthorized, "caller does not own wallet %s", wallet.ID)
		}
		if req.WalletID != session.WalletID {
			return apperrors.New(apperrors.CodeInvalidSession, "wallet %s does not match session %s", req.WalletID, session.ID)
		}
		if session.State.Terminal() {
			return apperrors.New(apperrors.CodeInvalidSession, "session %s is %s", session.ID, session.State)
		}
		if err := s.SetSessionState(session.ID, models.SessionAborted); err != nil {
			return apperrors.Wrap(err, "failed to abort session")
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Log.Infof("Aborted session %s", req.SessionID)
	return nil
}

// authorizeWallet checks that the wallet exists, is usable and belongs to
// the caller. An INACTIVE wallet or a curve mismatch reads as not found:
// such a wallet is not available for signing under the requested context.
func (e *Engine) authorizeWallet(user *models.User, walletID uuid.UUID, curve models.CurveType) (*models.Wallet, error) {
	wallet, err := e.wallets.GetWallet(walletID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load wallet")
	}
	if wallet == nil {
		return nil, apperrors.New(apperrors.CodeWalletNotFound, "no wallet %s", walletID)
	}
	if wallet.UserID != user.ID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "caller does not own wallet %s", walletID)
	}
	if wallet.Status != models.WalletActive || (curve != "" && wallet.CurveType != curve) {
		return nil, apperrors.New(apperrors.CodeWalletNotFound, "wallet %s is not active for curve %s", walletID, curve)
	}
	return wallet, nil
}
