package frost

import (
	"bytes"
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

const (
	secpBindingTag   = "tss-custody/frost/secp256k1/binding"
	secpChallengeTag = "tss-custody/frost/secp256k1/challenge"
)

type secpProvider struct{}

func (secpProvider) Round1(kp *KeyPackage) (*Commitment, *Nonces, error) {
	d, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to sample hiding nonce")
	}
	e, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to sample binding nonce")
	}
	commitment := &Commitment{
		Identifier: append([]byte(nil), kp.Identifier...),
		Hiding:     d.PubKey().SerializeCompressed(),
		Binding:    e.PubKey().SerializeCompressed(),
	}
	nonces := &Nonces{Hiding: d.Serialize(), Binding: e.Serialize()}
	return commitment, nonces, nil
}

func (secpProvider) Round2(message []byte, kp *KeyPackage, nonces *Nonces, commitments []Commitment) (*SignatureShare, error) {
	if err := validateCommitments(commitments); err != nil {
		return nil, err
	}
	sorted := append([]Commitment(nil), commitments...)
	SortCommitments(sorted)

	groupR, err := secpGroupCommitment(message, sorted)
	if err != nil {
		return nil, err
	}
	pub, err := secp256k1.ParsePubKey(kp.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid joint public key")
	}
	c := secpChallenge(groupR, pub.SerializeCompressed(), message)

	var d, e, s secp256k1.ModNScalar
	if overflow := d.SetByteSlice(nonces.Hiding); overflow {
		return nil, errors.New("invalid hiding nonce scalar")
	}
	if overflow := e.SetByteSlice(nonces.Binding); overflow {
		return nil, errors.New("invalid binding nonce scalar")
	}
	if overflow := s.SetByteSlice(kp.SecretShare); overflow {
		return nil, errors.New("invalid secret share scalar")
	}

	rho := secpBindingFactor(kp.Identifier, message, sorted)

	// z_i = d_i + rho_i*e_i + c*s_i
	z := new(secp256k1.ModNScalar).Set(&e)
	z.Mul(rho)
	z.Add(&d)
	cs := new(secp256k1.ModNScalar).Set(c)
	cs.Mul(&s)
	z.Add(cs)

	zBytes := z.Bytes()
	return &SignatureShare{
		Identifier: append([]byte(nil), kp.Identifier...),
		Share:      zBytes[:],
	}, nil
}

func (secpProvider) Aggregate(message []byte, commitments []Commitment, shares []SignatureShare, pub *PublicKeyPackage) (*Signature, error) {
	if err := validateCommitments(commitments); err != nil {
		return nil, err
	}
	sortedCommitments := append([]Commitment(nil), commitments...)
	SortCommitments(sortedCommitments)
	sortedShares := append([]SignatureShare(nil), shares...)
	SortShares(sortedShares)

	groupR, err := secpGroupCommitment(message, sortedCommitments)
	if err != nil {
		return nil, err
	}

	z := new(secp256k1.ModNScalar)
	for _, share := range sortedShares {
		var zi secp256k1.ModNScalar
		if overflow := zi.SetByteSlice(share.Share); overflow {
			return nil, errors.Errorf("invalid signature share from %#x", share.Identifier[0])
		}
		z.Add(&zi)
	}

	zBytes := z.Bytes()
	return &Signature{R: groupR, Z: zBytes[:]}, nil
}

func (secpProvider) Verify(message []byte, sig *Signature, pub *PublicKeyPackage) (bool, error) {
	rPub, err := secp256k1.ParsePubKey(sig.R)
	if err != nil {
		return false, errors.Wrap(err, "invalid signature R point")
	}
	yPub, err := secp256k1.ParsePubKey(pub.PublicKey)
	if err != nil {
		return false, errors.Wrap(err, "invalid public key")
	}
	var z secp256k1.ModNScalar
	if overflow := z.SetByteSlice(sig.Z); overflow {
		return false, nil
	}
	c := secpChallenge(sig.R, yPub.SerializeCompressed(), message)

	// z*G == R + c*Y
	var lhs, rPoint, yPoint, cY, rhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&z, &lhs)
	rPub.AsJacobian(&rPoint)
	yPub.AsJacobian(&yPoint)
	secp256k1.ScalarMultNonConst(c, &yPoint, &cY)
	secp256k1.AddNonConst(&rPoint, &cY, &rhs)

	lhsBytes, err := secpSerializePoint(&lhs)
	if err != nil {
		return false, nil
	}
	rhsBytes, err := secpSerializePoint(&rhs)
	if err != nil {
		return false, nil
	}
	return bytes.Equal(lhsBytes, rhsBytes), nil
}

func (secpProvider) GenerateShare() ([]byte, []byte, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate key share")
	}
	return priv.Serialize(), priv.PubKey().SerializeCompressed(), nil
}

func (secpProvider) JointPublicKey(otherPublicShare, ownSecretShare []byte) ([]byte, error) {
	otherPub, err := secp256k1.ParsePubKey(otherPublicShare)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public share point")
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(ownSecretShare); overflow || s.IsZero() {
		return nil, errors.New("invalid secret share scalar")
	}

	var otherPoint, ownPoint, joint secp256k1.JacobianPoint
	otherPub.AsJacobian(&otherPoint)
	secp256k1.ScalarBaseMultNonConst(&s, &ownPoint)
	secp256k1.AddNonConst(&otherPoint, &ownPoint, &joint)
	return secpSerializePoint(&joint)
}

// secpGroupCommitment computes R = sum_i (D_i + rho_i*E_i) over the
// canonically sorted commitment list.
func secpGroupCommitment(message []byte, sorted []Commitment) ([]byte, error) {
	var sum secp256k1.JacobianPoint
	for _, c := range sorted {
		dPub, err := secp256k1.ParsePubKey(c.Hiding)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid hiding commitment from %#x", c.Identifier[0])
		}
		ePub, err := secp256k1.ParsePubKey(c.Binding)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid binding commitment from %#x", c.Identifier[0])
		}
		rho := secpBindingFactor(c.Identifier, message, sorted)

		var dPoint, ePoint, rhoE, partial, next secp256k1.JacobianPoint
		dPub.AsJacobian(&dPoint)
		ePub.AsJacobian(&ePoint)
		secp256k1.ScalarMultNonConst(rho, &ePoint, &rhoE)
		secp256k1.AddNonConst(&dPoint, &rhoE, &partial)
		secp256k1.AddNonConst(&sum, &partial, &next)
		sum = next
	}
	return secpSerializePoint(&sum)
}

func secpBindingFactor(identifier, message []byte, sorted []Commitment) *secp256k1.ModNScalar {
	h := sha256.New()
	h.Write([]byte(secpBindingTag))
	h.Write(identifier)
	h.Write(message)
	for _, c := range sorted {
		h.Write(c.Identifier)
		h.Write(c.Hiding)
		h.Write(c.Binding)
	}
	rho := new(secp256k1.ModNScalar)
	rho.SetByteSlice(h.Sum(nil))
	if rho.IsZero() {
		rho.SetInt(1)
	}
	return rho
}

func secpChallenge(groupR, publicKey, message []byte) *secp256k1.ModNScalar {
	h := sha256.New()
	h.Write([]byte(secpChallengeTag))
	h.Write(groupR)
	h.Write(publicKey)
	h.Write(message)
	c := new(secp256k1.ModNScalar)
	c.SetByteSlice(h.Sum(nil))
	return c
}

func secpSerializePoint(p *secp256k1.JacobianPoint) ([]byte, error) {
	if p.Z.IsZero() {
		return nil, errors.New("point at infinity")
	}
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y).SerializeCompressed(), nil
}
