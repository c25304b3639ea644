// Package sss implements Shamir secret sharing over a prime field. It is
// used to split a wallet's server-side key share across the custodian fleet
// and to recombine it during recovery. Splitting never changes the
// underlying secret, so resharing preserves the wallet's public key.
package sss

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// Fragment is one party's piece of a split secret. Index is the evaluation
// point x (never zero) and doubles as the fragment's identifier.
type Fragment struct {
	Index byte   `cbor:"index"`
	Value []byte `cbor:"value"`
}

// Split shares secret among n fragments such that any threshold of them
// reconstruct it. The secret is interpreted as a big-endian integer and must
// be smaller than the field prime. n below threshold is permitted: the
// fragments alone cannot reconstruct until resharing widens the set, which
// is exactly the "below safe operating threshold" fleet state.
func Split(secret []byte, threshold, n int, prime *big.Int) ([]Fragment, error) {
	if threshold < 1 || n < 1 {
		return nil, errors.Errorf("invalid threshold %d for %d fragments", threshold, n)
	}
	if n > 255 {
		return nil, errors.Errorf("too many fragments: %d", n)
	}
	s := new(big.Int).SetBytes(secret)
	if s.Cmp(prime) >= 0 {
		return nil, errors.New("secret is not a field element")
	}

	// f(x) = secret + a1*x + ... + a(t-1)*x^(t-1) mod p
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = s
	for i := 1; i < threshold; i++ {
		c, err := rand.Int(rand.Reader, prime)
		if err != nil {
			return nil, errors.Wrap(err, "failed to sample coefficient")
		}
		coeffs[i] = c
	}

	byteLen := (prime.BitLen() + 7) / 8
	fragments := make([]Fragment, n)
	for i := 0; i < n; i++ {
		x := big.NewInt(int64(i + 1))
		y := evalPolynomial(coeffs, x, prime)
		fragments[i] = Fragment{
			Index: byte(i + 1),
			Value: leftPad(y.Bytes(), byteLen),
		}
	}
	return fragments, nil
}

// Combine reconstructs the secret from at least threshold distinct
// fragments via Lagrange interpolation at zero.
func Combine(fragments []Fragment, threshold int, prime *big.Int) ([]byte, error) {
	if len(fragments) < threshold {
		return nil, errors.Errorf("need %d fragments, have %d", threshold, len(fragments))
	}
	seen := make(map[byte]bool, threshold)
	subset := make([]Fragment, 0, threshold)
	for _, f := range fragments {
		if f.Index == 0 {
			return nil, errors.New("fragment index must not be zero")
		}
		if seen[f.Index] {
			continue
		}
		seen[f.Index] = true
		subset = append(subset, f)
		if len(subset) == threshold {
			break
		}
	}
	if len(subset) < threshold {
		return nil, errors.Errorf("need %d distinct fragments, have %d", threshold, len(subset))
	}

	secret := new(big.Int)
	for i, fi := range subset {
		xi := big.NewInt(int64(fi.Index))
		yi := new(big.Int).SetBytes(fi.Value)

		// Lagrange basis at zero: prod_{j!=i} x_j / (x_j - x_i)
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, fj := range subset {
			if j == i {
				continue
			}
			xj := big.NewInt(int64(fj.Index))
			num.Mul(num, xj)
			num.Mod(num, prime)
			diff := new(big.Int).Sub(xj, xi)
			den.Mul(den, diff)
			den.Mod(den, prime)
		}
		den.ModInverse(den, prime)
		term := new(big.Int).Mul(yi, num)
		term.Mul(term, den)
		secret.Add(secret, term)
		secret.Mod(secret, prime)
	}

	byteLen := (prime.BitLen() + 7) / 8
	return leftPad(secret.Bytes(), byteLen), nil
}

func evalPolynomial(coeffs []*big.Int, x, prime *big.Int) *big.Int {
	// Horner's rule
	y := new(big.Int).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		y.Mul(y, x)
		y.Add(y, coeffs[i])
		y.Mod(y, prime)
	}
	return y
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
