//go:build fips
// +build fips

package crypto

// FIPSMode reports whether the binary was built in FIPS mode.
// When true, HMAC keys shorter than 112 bits and the demo key are refused,
// and a failing self test panics at package load.
func FIPSMode() bool { return true }
