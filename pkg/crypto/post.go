// Power-on self tests for the uplink digests.
//
// The self tests run when the package is loaded, before any tag is computed or
// verified, and check every supported digest against fixed known answers:
//   - HMAC-SHA256 (RFC 4231 test case 2)
//   - HMAC-SHA3-256 (same key and message)
//
// In FIPS mode a failure panics so no packet is ever signed by a broken
// implementation. In standard mode the failure is recorded and reported by
// RunSelfTest, the health endpoint and `satcom selftest`.

package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pzverkov/satcom-uplink/internal/constants"
)

// selfTestVector is one known-answer test.
type selfTestVector struct {
	alg      constants.DigestAlgorithm
	key      []byte
	message  []byte
	expected []byte
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

var selfTestVectors = []selfTestVector{
	{
		alg:      constants.DigestHMACSHA256,
		key:      []byte("Jefe"),
		message:  []byte("what do ya want for nothing?"),
		expected: mustHex("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"),
	},
	{
		alg:      constants.DigestHMACSHA3256,
		key:      []byte("Jefe"),
		message:  []byte("what do ya want for nothing?"),
		expected: mustHex("c7d4072e788877ae3596bbb0da73b887c9171f93095b294ae857fbe2645e1ba5"),
	},
}

// SelfTestResult contains the results of the power-on self tests
type SelfTestResult struct {
	Passed     bool
	Algorithms map[constants.DigestAlgorithm]bool
	Errors     []string
}

var (
	selfTestResult *SelfTestResult
	selfTestOnce   sync.Once
)

// RunSelfTest executes the known-answer tests and returns the results.
// This function is safe to call multiple times; tests only run once.
func RunSelfTest() *SelfTestResult {
	selfTestOnce.Do(func() {
		result := &SelfTestResult{
			Passed:     true,
			Algorithms: make(map[constants.DigestAlgorithm]bool, len(selfTestVectors)),
		}

		for _, v := range selfTestVectors {
			if err := runKAT(v); err != nil {
				result.Passed = false
				result.Algorithms[v.alg] = false
				result.Errors = append(result.Errors, fmt.Sprintf("%s KAT failed: %v", v.alg, err))
				continue
			}
			result.Algorithms[v.alg] = true
		}

		selfTestResult = result

		if FIPSMode() && !result.Passed {
			panic(fmt.Sprintf("FIPS self test failed: %v", result.Errors))
		}
	})

	return selfTestResult
}

// SelfTestPassed returns true if the self tests have run and all passed
func SelfTestPassed() bool {
	return RunSelfTest().Passed
}

func runKAT(v selfTestVector) error {
	// The known-answer key is shorter than the FIPS minimum, so the signer is
	// built directly instead of through NewSigner.
	h, err := hashFunc(v.alg)
	if err != nil {
		return err
	}
	s := &Signer{key: v.key, alg: v.alg, h: h}

	tag := s.Sign(v.message)
	if !bytes.Equal(tag, v.expected) {
		return fmt.Errorf("tag mismatch: got %x, want %x", tag, v.expected)
	}
	if !s.Verify(v.message, v.expected) {
		return fmt.Errorf("verification of known tag failed")
	}

	flipped := append([]byte(nil), v.expected...)
	flipped[0] ^= 0x01
	if s.Verify(v.message, flipped) {
		return fmt.Errorf("altered tag verified")
	}
	return nil
}

func init() {
	RunSelfTest()
}
