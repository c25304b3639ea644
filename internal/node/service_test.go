package node

import (
	"crypto/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tss-custody/internal/apperrors"
	"tss-custody/internal/custody"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage/models"
)

type memShareStore struct {
	rows map[custody.ShareIdentity]*models.StoredShare
}

func newMemShareStore() *memShareStore {
	return &memShareStore{rows: make(map[custody.ShareIdentity]*models.StoredShare)}
}

func identityOf(row *models.StoredShare) custody.ShareIdentity {
	return custody.ShareIdentity{
		UserAuthID: row.UserAuthID,
		AuthType:   row.AuthType,
		CurveType:  row.CurveType,
		PublicKey:  row.PublicKey,
	}
}

func (s *memShareStore) Get(identity custody.ShareIdentity) (*models.StoredShare, error) {
	row, ok := s.rows[identity]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memShareStore) Create(row *models.StoredShare) error {
	row.ID = uuid.New()
	s.rows[identityOf(row)] = row
	return nil
}

func (s *memShareStore) Upsert(row *models.StoredShare) error {
	key := identityOf(row)
	if existing, ok := s.rows[key]; ok {
		existing.EncryptedShare = row.EncryptedShare
		return nil
	}
	return s.Create(row)
}

func newTestService(t *testing.T) (*Service, *memShareStore) {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	cipher, err := sharecrypt.NewCipher(secret)
	require.NoError(t, err)
	store := newMemShareStore()
	return NewService(store, cipher), store
}

func testIdentity() custody.ShareIdentity {
	return custody.ShareIdentity{
		UserAuthID: "alice@example.com",
		AuthType:   models.AuthTypeEmail,
		CurveType:  models.CurveSecp256k1,
		PublicKey:  "02aabbcc",
	}
}

func TestRegisterAndGet(t *testing.T) {
	svc, store := newTestService(t)
	identity := testIdentity()
	fragment := []byte("fragment bytes")

	require.NoError(t, svc.Register(identity, fragment))

	// At rest the fragment is encrypted.
	row, err := store.Get(identity)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotEqual(t, fragment, row.EncryptedShare)

	got, err := svc.Get(identity)
	require.NoError(t, err)
	require.Equal(t, fragment, got)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	identity := testIdentity()

	require.NoError(t, svc.Register(identity, []byte("first")))
	err := svc.Register(identity, []byte("second"))
	require.Equal(t, apperrors.CodeDuplicatePublicKey, apperrors.CodeOf(err))

	// The original fragment is untouched.
	got, err := svc.Get(identity)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(testIdentity())
	require.Equal(t, apperrors.CodeKeyShareNotFound, apperrors.CodeOf(err))
}

func TestCheckReportsExistence(t *testing.T) {
	svc, _ := newTestService(t)
	identity := testIdentity()

	result, err := svc.Check(identity)
	require.NoError(t, err)
	require.False(t, result.Exists)
	require.Empty(t, result.Fingerprint)

	require.NoError(t, svc.Register(identity, []byte("fragment")))

	result, err = svc.Check(identity)
	require.NoError(t, err)
	require.True(t, result.Exists)
	require.NotEmpty(t, result.Fingerprint)
}

func TestReshareUpserts(t *testing.T) {
	svc, _ := newTestService(t)
	identity := testIdentity()

	// Reshare creates when absent.
	require.NoError(t, svc.Reshare(identity, []byte("v1")))
	got, err := svc.Get(identity)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	// And overwrites when present.
	require.NoError(t, svc.Reshare(identity, []byte("v2")))
	got, err = svc.Get(identity)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}
