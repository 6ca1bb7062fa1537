package crypto

import (
	"crypto/rand"
	"io"

	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
)

// SecureRandomBytes returns n bytes from the OS CSPRNG. Rogue stations use
// it for throwaway spoofing keys and malformed payloads.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, qerrors.NewCryptoError("SecureRandomBytes", err)
	}
	return b, nil
}

// Zeroize overwrites key material once it is no longer needed. Copies made
// by the runtime are not reached.
func Zeroize(b []byte) {
	clear(b)
}
