//go:build !fips
// +build !fips

package crypto

// FIPSMode reports whether the binary was built in FIPS mode.
// When false, any HMAC key is accepted.
func FIPSMode() bool { return false }
