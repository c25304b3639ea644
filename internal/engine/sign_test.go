package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/frost"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage/models"
)

type testEnv struct {
	engine   *Engine
	sessions *memSessionStore
	wallets  *memWalletStore
	catalog  *memCustodyStore
	fleet    *memFleet
	cipher   *sharecrypt.Cipher
	identity Identity
}

func newTestEnv(t *testing.T, nodeCount, threshold int) *testEnv {
	t.Helper()
	catalog := newMemCustodyStore(threshold)
	for i := 0; i < nodeCount; i++ {
		catalog.addNode()
	}
	wallets := newMemWalletStore(catalog)
	sessions := newMemSessionStore()
	fleet := newMemFleet()

	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	cipher, err := sharecrypt.NewCipher(secret)
	require.NoError(t, err)

	return &testEnv{
		engine:   New(sessions, wallets, catalog, fleet, cipher),
		sessions: sessions,
		wallets:  wallets,
		catalog:  catalog,
		fleet:    fleet,
		cipher:   cipher,
		identity: Identity{AuthID: "alice@example.com", AuthType: models.AuthTypeEmail},
	}
}

// clientKey is the client-side half of a provisioned wallet, kept around so
// tests can play the client's protocol role.
type clientKey struct {
	provider     frost.Provider
	curve        models.CurveType
	secret       []byte
	public       []byte
	serverSecret []byte
	jointPublic  []byte
}

func newClientKey(t *testing.T, curve models.CurveType) *clientKey {
	t.Helper()
	provider, err := frost.ProviderFor(curve)
	require.NoError(t, err)
	secret, public, err := provider.GenerateShare()
	require.NoError(t, err)
	serverSecret, _, err := provider.GenerateShare()
	require.NoError(t, err)
	joint, err := provider.JointPublicKey(public, serverSecret)
	require.NoError(t, err)
	return &clientKey{
		provider:     provider,
		curve:        curve,
		secret:       secret,
		public:       public,
		serverSecret: serverSecret,
		jointPublic:  joint,
	}
}

func (ck *clientKey) keygenInput() KeygenCurveInput {
	return KeygenCurveInput{
		CurveType:         ck.curve,
		ClientPublicShare: ck.public,
		ServerSecretShare: ck.serverSecret,
	}
}

func (ck *clientKey) keyPackage() *frost.KeyPackage {
	return &frost.KeyPackage{
		Identifier:  frost.ClientIdentifier,
		SecretShare: ck.secret,
		PublicKey:   ck.jointPublic,
		CurveType:   ck.curve,
	}
}

// provisionWallet runs keygen for one curve and returns the wallet id.
func provisionWallet(t *testing.T, env *testEnv, ck *clientKey) uuid.UUID {
	t.Helper()
	result, err := env.engine.Keygen(context.Background(), env.identity, KeygenRequest{
		CustomerID: "customer-1",
		Curves:     []KeygenCurveInput{ck.keygenInput()},
	})
	require.NoError(t, err)
	require.Len(t, result.Wallets, 1)
	return result.Wallets[0].WalletID
}

// runSigningFlow plays both protocol roles through one full session and
// returns the aggregated signature.
func runSigningFlow(t *testing.T, env *testEnv, walletID uuid.UUID, ck *clientKey, message []byte) *frost.Signature {
	t.Helper()
	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID:  walletID,
		CurveType: ck.curve,
		Message:   message,
	})
	require.NoError(t, err)

	clientCommitment, clientNonces, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)

	round2, err := env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID:        round1.SessionID,
		ClientCommitment: *clientCommitment,
	})
	require.NoError(t, err)

	commitments := []frost.Commitment{*clientCommitment, round2.ServerCommitment}
	clientShare, err := ck.provider.Round2(message, ck.keyPackage(), clientNonces, commitments)
	require.NoError(t, err)

	sig, err := ck.provider.Aggregate(message, commitments,
		[]frost.SignatureShare{*clientShare, round2.ServerShare},
		&frost.PublicKeyPackage{PublicKey: ck.jointPublic, CurveType: ck.curve})
	require.NoError(t, err)
	return sig
}

func TestSigningFlowProducesValidSignature(t *testing.T) {
	for _, curve := range []models.CurveType{models.CurveSecp256k1, models.CurveEd25519} {
		t.Run(string(curve), func(t *testing.T) {
			env := newTestEnv(t, 3, 2)
			ck := newClientKey(t, curve)
			walletID := provisionWallet(t, env, ck)

			message := []byte("send 1 coin")
			sig := runSigningFlow(t, env, walletID, ck, message)

			ok, err := ck.provider.Verify(message, sig,
				&frost.PublicKeyPackage{PublicKey: ck.jointPublic, CurveType: curve})
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestSignRound2CompletesSessionExactlyOnce(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	req := SignRound2Request{SessionID: round1.SessionID, ClientCommitment: *clientCommitment}

	_, err = env.engine.SignRound2(env.identity, req)
	require.NoError(t, err)

	session, err := env.sessions.GetSession(round1.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, session.State)
	stage, err := env.sessions.GetStage(round1.SessionID, models.StageSign)
	require.NoError(t, err)
	require.Equal(t, models.StageCompleted, stage.StageStatus)

	// A duplicate round 2 must fail without producing a second share.
	_, err = env.engine.SignRound2(env.identity, req)
	require.Equal(t, apperrors.CodeInvalidSession, apperrors.CodeOf(err))
}

func TestSignRound2ClearsNonces(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)
	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.NoError(t, err)

	stage, err := env.sessions.GetStage(round1.SessionID, models.StageSign)
	require.NoError(t, err)
	payload, err := decodeStagePayload(env.cipher, stage.StageData, models.StageSign)
	require.NoError(t, err)
	require.Nil(t, payload.Sign.ServerNonces, "one-time nonces must not survive round 2")
}

func TestSignRound2UnknownSession(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	provisionWallet(t, env, ck)

	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: uuid.New(), ClientCommitment: *clientCommitment,
	})
	require.Equal(t, apperrors.CodeSessionNotFound, apperrors.CodeOf(err))
}

func TestSessionWithMissingWalletRow(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	// The session now points at a wallet row that no longer exists. Both
	// entry points must report the integrity failure as a wallet lookup
	// miss, never as a retryable infrastructure error.
	delete(env.wallets.wallets, walletID)

	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))
	require.False(t, apperrors.Retryable(err))

	err = env.engine.Abort(env.identity, AbortRequest{
		SessionID: round1.SessionID, WalletID: walletID,
	})
	require.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))
	require.False(t, apperrors.Retryable(err))
}

func TestSignRound2RejectsServerIdentifier(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	clientCommitment.Identifier = frost.ServerIdentifier

	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.Equal(t, apperrors.CodeInvalidSession, apperrors.CodeOf(err))

	// The guard fired before any mutation.
	session, err := env.sessions.GetSession(round1.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionInProgress, session.State)
}

func TestSignRound2NonOwnerRejected(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	intruder := Identity{AuthID: "mallory@example.com", AuthType: models.AuthTypeEmail}
	require.NoError(t, env.wallets.CreateUser(&models.User{
		ID: uuid.New(), AuthID: intruder.AuthID, AuthType: intruder.AuthType,
	}))

	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(intruder, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.Equal(t, apperrors.CodeUnauthorized, apperrors.CodeOf(err))

	// The session is untouched; the real owner can still finish it.
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.NoError(t, err)
}

func TestSignRound1WalletGuards(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	_, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: uuid.New(), CurveType: ck.curve, Message: []byte("m"),
	})
	require.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))

	// A curve mismatch reads as not found, not as unauthorized.
	_, err = env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: models.CurveEd25519, Message: []byte("m"),
	})
	require.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))

	// So does an INACTIVE wallet.
	env.wallets.wallets[walletID].Status = models.WalletInactive
	_, err = env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.Equal(t, apperrors.CodeWalletNotFound, apperrors.CodeOf(err))
}

func TestSignRound1UnknownUser(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	_, err := env.engine.SignRound1(Identity{AuthID: "nobody", AuthType: models.AuthTypeEmail},
		SignRound1Request{WalletID: uuid.New(), CurveType: models.CurveSecp256k1, Message: []byte("m")})
	require.Equal(t, apperrors.CodeUserNotFound, apperrors.CodeOf(err))
}

func TestAbortTerminatesSession(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Abort(env.identity, AbortRequest{
		SessionID: round1.SessionID, WalletID: walletID,
	}))
	session, err := env.sessions.GetSession(round1.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionAborted, session.State)

	// Round 2 against an aborted session fails; abort wins the race.
	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: round1.SessionID, ClientCommitment: *clientCommitment,
	})
	require.Equal(t, apperrors.CodeInvalidSession, apperrors.CodeOf(err))

	// Terminal states are immutable, including for a second abort.
	err = env.engine.Abort(env.identity, AbortRequest{
		SessionID: round1.SessionID, WalletID: walletID,
	})
	require.Equal(t, apperrors.CodeInvalidSession, apperrors.CodeOf(err))
}

func TestAbortWalletMismatch(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	err = env.engine.Abort(env.identity, AbortRequest{
		SessionID: round1.SessionID, WalletID: uuid.New(),
	})
	require.Equal(t, apperrors.CodeInvalidSession, apperrors.CodeOf(err))

	// A mismatch never silently aborts.
	session, err := env.sessions.GetSession(round1.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionInProgress, session.State)
}

func TestAbortNonOwnerRejected(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	round1, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("m"),
	})
	require.NoError(t, err)

	intruder := Identity{AuthID: "mallory@example.com", AuthType: models.AuthTypeEmail}
	require.NoError(t, env.wallets.CreateUser(&models.User{
		ID: uuid.New(), AuthID: intruder.AuthID, AuthType: intruder.AuthType,
	}))
	err = env.engine.Abort(intruder, AbortRequest{
		SessionID: round1.SessionID, WalletID: walletID,
	})
	require.Equal(t, apperrors.CodeUnauthorized, apperrors.CodeOf(err))

	session, err := env.sessions.GetSession(round1.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionInProgress, session.State)
}

func TestAbortUnknownSession(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	provisionWallet(t, env, ck)

	err := env.engine.Abort(env.identity, AbortRequest{SessionID: uuid.New(), WalletID: uuid.New()})
	require.Equal(t, apperrors.CodeSessionNotFound, apperrors.CodeOf(err))
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveSecp256k1)
	walletID := provisionWallet(t, env, ck)

	first, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("first"),
	})
	require.NoError(t, err)
	second, err := env.engine.SignRound1(env.identity, SignRound1Request{
		WalletID: walletID, CurveType: ck.curve, Message: []byte("second"),
	})
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	// Aborting one session leaves the other signable.
	require.NoError(t, env.engine.Abort(env.identity, AbortRequest{
		SessionID: first.SessionID, WalletID: walletID,
	}))
	clientCommitment, _, err := ck.provider.Round1(ck.keyPackage())
	require.NoError(t, err)
	_, err = env.engine.SignRound2(env.identity, SignRound2Request{
		SessionID: second.SessionID, ClientCommitment: *clientCommitment,
	})
	require.NoError(t, err)
}

func TestWalletPublicKeyMatchesClientDerivation(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ck := newClientKey(t, models.CurveEd25519)
	walletID := provisionWallet(t, env, ck)

	wallet, err := env.wallets.GetWallet(walletID)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(ck.jointPublic), wallet.PublicKey)
}
