package crypto_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// TestKATSign verifies tags against precomputed vectors (RFC 4231 for SHA-256).
func TestKATSign(t *testing.T) {
	testCases := []struct {
		name     string
		alg      constants.DigestAlgorithm
		key      string // hex-encoded
		message  string
		expected string // hex-encoded
	}{
		{
			name:     "RFC 4231 case 1 SHA256",
			alg:      constants.DigestHMACSHA256,
			key:      "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			message:  "Hi There",
			expected: "b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7",
		},
		{
			name:     "RFC 4231 case 2 SHA256",
			alg:      constants.DigestHMACSHA256,
			key:      hex.EncodeToString([]byte("Jefe")),
			message:  "what do ya want for nothing?",
			expected: "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		},
		{
			name:     "case 1 SHA3-256",
			alg:      constants.DigestHMACSHA3256,
			key:      "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b",
			message:  "Hi There",
			expected: "ba85192310dffa96e2a3a40e69774351140bb7185e1202cdcc917589f95e16bb",
		},
		{
			name:     "case 2 SHA3-256",
			alg:      constants.DigestHMACSHA3256,
			key:      hex.EncodeToString([]byte("Jefe")),
			message:  "what do ya want for nothing?",
			expected: "c7d4072e788877ae3596bbb0da73b887c9171f93095b294ae857fbe2645e1ba5",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := fromHex(t, tc.key)
			if crypto.FIPSMode() && len(key) < constants.FIPSMinKeySize {
				t.Skip("key below FIPS minimum")
			}
			s, err := crypto.NewSigner(key, tc.alg)
			if err != nil {
				t.Fatalf("NewSigner failed: %v", err)
			}
			got := s.HexSign([]byte(tc.message))
			if got != tc.expected {
				t.Errorf("HexSign() = %s, want %s", got, tc.expected)
			}
			if !s.Verify([]byte(tc.message), fromHex(t, tc.expected)) {
				t.Error("Verify() rejected the expected tag")
			}
		})
	}
}

func TestSignEmptyMessage(t *testing.T) {
	tag := crypto.Sign(nil, []byte("k"))
	want := "8bb990c40a7d61cb97597a942125025be50ac8beb74436e3735b98893a7f6620"
	if hex.EncodeToString(tag) != want {
		t.Errorf("Sign(empty) = %x, want %s", tag, want)
	}
	if len(tag) != constants.DigestSize {
		t.Errorf("tag length = %d, want %d", len(tag), constants.DigestSize)
	}
}

func TestSignDeterministic(t *testing.T) {
	key := []byte("shared-uplink-key")
	msg := []byte("CMD: ORIENT +10")

	a := crypto.Sign(msg, key)
	b := crypto.Sign(msg, key)
	if !bytes.Equal(a, b) {
		t.Error("Sign() is not deterministic")
	}
	if bytes.Equal(a, crypto.Sign(msg, []byte("other-uplink-key!"))) {
		t.Error("different keys produced the same tag")
	}
}

func TestVerify(t *testing.T) {
	key := []byte("shared-uplink-key")
	msg := []byte("CMD: ORIENT +10")
	tag := crypto.Sign(msg, key)

	tests := []struct {
		name string
		msg  []byte
		tag  []byte
		key  []byte
		want bool
	}{
		{"authentic", msg, tag, key, true},
		{"wrong key", msg, tag, []byte("attacker-key-0000"), false},
		{"altered message", []byte("CMD: ORIENT +11"), tag, key, false},
		{"altered tag", msg, append([]byte{tag[0] ^ 0x80}, tag[1:]...), key, false},
		{"short tag", msg, tag[:31], key, false},
		{"long tag", msg, append(append([]byte{}, tag...), 0), key, false},
		{"empty tag", msg, nil, key, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := crypto.Verify(tt.msg, tt.tag, tt.key); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSignerErrors(t *testing.T) {
	if _, err := crypto.NewSigner([]byte("shared-uplink-key"), constants.DigestAlgorithm(0x99)); !errors.Is(err, qerrors.ErrUnsupportedDigest) {
		t.Errorf("unsupported digest: got %v", err)
	}
	if !crypto.FIPSMode() {
		return
	}
	if _, err := crypto.NewSigner(nil, constants.DigestHMACSHA256); !errors.Is(err, qerrors.ErrWeakKey) {
		t.Errorf("empty key: got %v", err)
	}

	var ce *qerrors.CryptoError
	_, err := crypto.NewVerifier([]byte{}, constants.DigestHMACSHA256)
	if !errors.As(err, &ce) {
		t.Errorf("expected CryptoError, got %T", err)
	}
}

func TestEmptyKeyMatchesPackageSign(t *testing.T) {
	if crypto.FIPSMode() {
		t.Skip("FIPS builds refuse empty keys")
	}
	msg := []byte("CMD: PING")

	signer, err := crypto.NewSigner(nil, constants.DigestHMACSHA256)
	if err != nil {
		t.Fatalf("NewSigner(empty key): %v", err)
	}
	tag := signer.Sign(msg)
	if !bytes.Equal(tag, crypto.Sign(msg, []byte{})) {
		t.Error("Signer and Sign disagree on an empty key")
	}

	verifier, err := crypto.NewVerifier([]byte{}, constants.DigestHMACSHA256)
	if err != nil {
		t.Fatalf("NewVerifier(empty key): %v", err)
	}
	if !verifier.Verify(msg, tag) || !crypto.Verify(msg, tag, nil) {
		t.Error("empty-key tag did not verify")
	}
	if verifier.Verify(msg, crypto.Sign(msg, []byte("other"))) {
		t.Error("tag under another key verified")
	}
}

func TestCheckKeyFIPSMinimum(t *testing.T) {
	err := crypto.CheckKey([]byte("short"))
	if crypto.FIPSMode() {
		if !errors.Is(err, qerrors.ErrWeakKey) {
			t.Errorf("FIPS mode should reject 5-byte key, got %v", err)
		}
	} else if err != nil {
		t.Errorf("standard mode should accept 5-byte key, got %v", err)
	}

	if err := crypto.CheckKey([]byte("fourteen-bytes")); err != nil {
		t.Errorf("14-byte key rejected: %v", err)
	}
}

func TestSignerCopiesKey(t *testing.T) {
	key := []byte("shared-uplink-key")
	s, err := crypto.NewSigner(key, constants.DigestHMACSHA256)
	if err != nil {
		t.Fatal(err)
	}
	before := s.Sign([]byte("x"))
	key[0] ^= 0xFF
	if !bytes.Equal(before, s.Sign([]byte("x"))) {
		t.Error("mutating caller key changed signer output")
	}
}

func TestVerifierMatchesSigner(t *testing.T) {
	key := []byte("shared-uplink-key")
	for _, alg := range []constants.DigestAlgorithm{constants.DigestHMACSHA256, constants.DigestHMACSHA3256} {
		t.Run(alg.String(), func(t *testing.T) {
			s, err := crypto.NewSigner(key, alg)
			if err != nil {
				t.Fatal(err)
			}
			v, err := crypto.NewVerifier(key, alg)
			if err != nil {
				t.Fatal(err)
			}
			if v.Algorithm() != alg || s.Algorithm() != alg {
				t.Errorf("Algorithm() mismatch")
			}
			msg := []byte("CMD: DEPLOY PANEL")
			if !v.Verify(msg, s.Sign(msg)) {
				t.Error("verifier rejected signer tag")
			}
		})
	}

	// The two digests must not be interchangeable.
	s256, _ := crypto.NewSigner(key, constants.DigestHMACSHA256)
	v3, _ := crypto.NewVerifier(key, constants.DigestHMACSHA3256)
	if v3.Verify([]byte("m"), s256.Sign([]byte("m"))) {
		t.Error("SHA3 verifier accepted SHA256 tag")
	}
}

func TestSignerDestroy(t *testing.T) {
	key := []byte("shared-uplink-key")
	s, _ := crypto.NewSigner(key, constants.DigestHMACSHA256)
	tag := s.Sign([]byte("m"))
	s.Destroy()
	if s.Verify([]byte("m"), tag) {
		t.Error("destroyed signer still verifies tags made with the original key")
	}
}

func TestSignerConcurrent(t *testing.T) {
	s, _ := crypto.NewSigner([]byte("shared-uplink-key"), constants.DigestHMACSHA256)
	want := s.Sign([]byte("CMD: PING"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !bytes.Equal(s.Sign([]byte("CMD: PING")), want) {
					t.Error("concurrent Sign produced a different tag")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSecureRandomBytes(t *testing.T) {
	sizes := []int{16, 24, 32}
	for _, size := range sizes {
		buf, err := crypto.SecureRandomBytes(size)
		if err != nil {
			t.Fatalf("SecureRandomBytes(%d) failed: %v", size, err)
		}
		if len(buf) != size {
			t.Errorf("SecureRandomBytes(%d) returned %d bytes", size, len(buf))
		}
	}

	a, _ := crypto.SecureRandomBytes(32)
	b, _ := crypto.SecureRandomBytes(32)
	if bytes.Equal(a, b) {
		t.Error("two random draws are identical")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	crypto.Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d = %d after Zeroize", i, v)
		}
	}
}

func BenchmarkSignSHA256(b *testing.B) {
	s, _ := crypto.NewSigner([]byte("shared-uplink-key"), constants.DigestHMACSHA256)
	msg := make([]byte, 64)
	b.SetBytes(int64(len(msg)))
	for i := 0; i < b.N; i++ {
		s.Sign(msg)
	}
}

func BenchmarkSignSHA3(b *testing.B) {
	s, _ := crypto.NewSigner([]byte("shared-uplink-key"), constants.DigestHMACSHA3256)
	msg := make([]byte, 64)
	b.SetBytes(int64(len(msg)))
	for i := 0; i < b.N; i++ {
		s.Sign(msg)
	}
}
