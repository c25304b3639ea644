// Package frost implements the two-round threshold Schnorr signing protocol
// consumed by the session engine. Each party holds an additive share of the
// signing key; round 1 produces nonce commitments, round 2 produces a
// signature share, and Aggregate combines both parties' shares into a
// signature verifiable against the joint public key.
package frost

import (
	"math/big"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"tss-custody/internal/storage/models"
)

// ed25519Order is the prime order of the Ed25519 scalar field,
// 2^252 + 27742317777372353535851937790883648493.
var ed25519Order, _ = new(big.Int).SetString(
	"1000000000000000000000000000000014def9dea2f79cd65812631a5cf5d3ed", 16)

// CurveOrder returns the scalar field order for a curve, used when
// secret-sharing serialized key shares.
func CurveOrder(curve models.CurveType) (*big.Int, error) {
	switch curve {
	case models.CurveSecp256k1:
		return secp256k1.S256().N, nil
	case models.CurveEd25519:
		return ed25519Order, nil
	default:
		return nil, errors.Errorf("unsupported curve type %q", curve)
	}
}

// Identifiers for the two signing parties. The numeric value of the first
// byte defines the canonical ordering of commitment and share lists.
var (
	ClientIdentifier = []byte{0x01}
	ServerIdentifier = []byte{0x02}
)

// ShareToFieldBytes converts a serialized secret share to the big-endian
// field-element form used by secret sharing. Ed25519 scalars serialize
// little-endian, so they are byte-reversed; secp256k1 scalars pass through.
func ShareToFieldBytes(curve models.CurveType, share []byte) ([]byte, error) {
	switch curve {
	case models.CurveSecp256k1:
		return append([]byte(nil), share...), nil
	case models.CurveEd25519:
		return reverseBytes(share), nil
	default:
		return nil, errors.Errorf("unsupported curve type %q", curve)
	}
}

// FieldBytesToShare reverses ShareToFieldBytes.
func FieldBytesToShare(curve models.CurveType, b []byte) ([]byte, error) {
	return ShareToFieldBytes(curve, b)
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// Commitment is one party's public round-1 output.
type Commitment struct {
	Identifier []byte `cbor:"identifier" json:"identifier"`
	Hiding     []byte `cbor:"hiding" json:"hiding"`   // D = d*G
	Binding    []byte `cbor:"binding" json:"binding"` // E = e*G
}

// Nonces is the secret counterpart of a Commitment. It must be used for
// exactly one round-2 invocation and never leaves the generating process
// unencrypted.
type Nonces struct {
	Hiding  []byte `cbor:"hiding"`
	Binding []byte `cbor:"binding"`
}

// KeyPackage is one party's signing material for a wallet.
type KeyPackage struct {
	Identifier  []byte           `cbor:"identifier"`
	SecretShare []byte           `cbor:"secret_share"`
	PublicKey   []byte           `cbor:"public_key"` // joint public key
	CurveType   models.CurveType `cbor:"curve_type"`
}

// PublicKeyPackage is the verification half of a key.
type PublicKeyPackage struct {
	PublicKey []byte
	CurveType models.CurveType
}

// SignatureShare is one party's round-2 output.
type SignatureShare struct {
	Identifier []byte `cbor:"identifier" json:"identifier"`
	Share      []byte `cbor:"share" json:"share"`
}

// Signature is an aggregated Schnorr signature (R, z).
type Signature struct {
	R []byte `json:"r"`
	Z []byte `json:"z"`
}

// Provider exposes the round operations for one curve. Implementations are
// pure and stateless; all per-session state lives in the caller.
type Provider interface {
	// Round1 samples fresh nonces and returns their commitments.
	Round1(kp *KeyPackage) (*Commitment, *Nonces, error)
	// Round2 produces this party's signature share over message given every
	// party's round-1 commitment.
	Round2(message []byte, kp *KeyPackage, nonces *Nonces, commitments []Commitment) (*SignatureShare, error)
	// Aggregate combines all parties' shares into a full signature.
	Aggregate(message []byte, commitments []Commitment, shares []SignatureShare, pub *PublicKeyPackage) (*Signature, error)
	// Verify checks an aggregated signature against the joint public key.
	Verify(message []byte, sig *Signature, pub *PublicKeyPackage) (bool, error)
	// GenerateShare samples a fresh secret share and returns it with its
	// public point.
	GenerateShare() (secret, public []byte, err error)
	// JointPublicKey derives the joint public key from one party's public
	// share point and the other party's secret share.
	JointPublicKey(otherPublicShare, ownSecretShare []byte) ([]byte, error)
}

// ProviderFor returns the Provider for a curve type.
func ProviderFor(curve models.CurveType) (Provider, error) {
	switch curve {
	case models.CurveSecp256k1:
		return secpProvider{}, nil
	case models.CurveEd25519:
		return ed25519Provider{}, nil
	default:
		return nil, errors.Errorf("unsupported curve type %q", curve)
	}
}

// SortCommitments orders commitments by ascending numeric value of the
// identifier's first byte. Both parties must apply the same ordering before
// hashing or aggregating, independent of arrival order.
func SortCommitments(commitments []Commitment) {
	sort.Slice(commitments, func(i, j int) bool {
		return commitments[i].Identifier[0] < commitments[j].Identifier[0]
	})
}

// SortShares orders signature shares with the same rule as SortCommitments.
func SortShares(shares []SignatureShare) {
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].Identifier[0] < shares[j].Identifier[0]
	})
}

func validateCommitments(commitments []Commitment) error {
	if len(commitments) < 2 {
		return errors.Errorf("need at least 2 commitments, have %d", len(commitments))
	}
	seen := make(map[byte]bool, len(commitments))
	for _, c := range commitments {
		if len(c.Identifier) == 0 {
			return errors.New("commitment has empty identifier")
		}
		if seen[c.Identifier[0]] {
			return errors.Errorf("duplicate commitment identifier %#x", c.Identifier[0])
		}
		seen[c.Identifier[0]] = true
	}
	return nil
}
