// Package crypto implements the keyed digest that authenticates uplink packets.
//
// The trailer of every command packet is a 32-byte HMAC computed over all
// bytes that precede it. Two digests are supported:
//
//   - HMAC-SHA256 (default, FIPS 198-1 with FIPS 180-4)
//   - HMAC-SHA3-256 (FIPS 198-1 with FIPS 202)
//
// Both produce 256-bit tags, so the wire format does not depend on the choice.
// The sender and receiver must be configured with the same algorithm and key.
//
// Tag comparison is constant time. Verification never panics and never returns
// an error: a tag of the wrong length is simply not authentic.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
)

// hashFunc returns the hash constructor for a digest algorithm.
func hashFunc(alg constants.DigestAlgorithm) (func() hash.Hash, error) {
	switch alg {
	case constants.DigestHMACSHA256:
		return sha256.New, nil
	case constants.DigestHMACSHA3256:
		return sha3.New256, nil
	default:
		return nil, qerrors.ErrUnsupportedDigest
	}
}

// CheckKey reports whether key is acceptable as an HMAC key for this build.
// Standard builds treat the key as opaque bytes and accept any key, empty
// included, matching Sign and Verify. FIPS builds require at least 112 bits.
func CheckKey(key []byte) error {
	if FIPSMode() && len(key) < constants.FIPSMinKeySize {
		return qerrors.NewCryptoError("CheckKey", qerrors.ErrWeakKey)
	}
	return nil
}

// Signer computes authentication tags with a single key.
// A Signer is immutable after construction and safe for concurrent use.
type Signer struct {
	key []byte
	alg constants.DigestAlgorithm
	h   func() hash.Hash
}

// NewSigner creates a Signer bound to a copy of key.
func NewSigner(key []byte, alg constants.DigestAlgorithm) (*Signer, error) {
	h, err := hashFunc(alg)
	if err != nil {
		return nil, qerrors.NewCryptoError("NewSigner", err)
	}
	if err := CheckKey(key); err != nil {
		return nil, err
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k, alg: alg, h: h}, nil
}

// Sign returns the 32-byte tag of message.
func (s *Signer) Sign(message []byte) []byte {
	mac := hmac.New(s.h, s.key)
	mac.Write(message)
	return mac.Sum(nil)
}

// HexSign returns the tag of message as lowercase hex.
func (s *Signer) HexSign(message []byte) string {
	return hex.EncodeToString(s.Sign(message))
}

// Verify reports whether tag is the authentic tag of message.
func (s *Signer) Verify(message, tag []byte) bool {
	if len(tag) != constants.DigestSize {
		return false
	}
	return hmac.Equal(s.Sign(message), tag)
}

// Algorithm returns the digest algorithm of the signer.
func (s *Signer) Algorithm() constants.DigestAlgorithm {
	return s.alg
}

// Destroy zeroizes the key held by the signer. The signer must not be used afterwards.
func (s *Signer) Destroy() {
	Zeroize(s.key)
}

// Verifier checks authentication tags with a single key.
// It is the receiving half of a Signer and cannot produce tags itself.
type Verifier struct {
	signer *Signer
}

// NewVerifier creates a Verifier bound to a copy of key.
func NewVerifier(key []byte, alg constants.DigestAlgorithm) (*Verifier, error) {
	s, err := NewSigner(key, alg)
	if err != nil {
		return nil, err
	}
	return &Verifier{signer: s}, nil
}

// Verify reports whether tag is the authentic tag of message.
func (v *Verifier) Verify(message, tag []byte) bool {
	return v.signer.Verify(message, tag)
}

// Algorithm returns the digest algorithm of the verifier.
func (v *Verifier) Algorithm() constants.DigestAlgorithm {
	return v.signer.alg
}

// Destroy zeroizes the key held by the verifier.
func (v *Verifier) Destroy() {
	v.signer.Destroy()
}

// Sign computes the HMAC-SHA256 tag of message under key.
// It does not apply the key policy of CheckKey; use NewSigner for that.
func Sign(message, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// Verify reports whether tag is the HMAC-SHA256 tag of message under key.
// A tag of the wrong length returns false.
func Verify(message, tag, key []byte) bool {
	if len(tag) != constants.DigestSize {
		return false
	}
	return hmac.Equal(Sign(message, key), tag)
}
