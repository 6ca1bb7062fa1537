package config

import (
	"errors"
	"os"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

// ErrDemoKeyRefused is returned when the demo key would be used in a FIPS build.
var ErrDemoKeyRefused = errors.New("config: demo key refused in FIPS mode")

// ResolveKey picks the shared HMAC key. The explicit key wins, then the
// SATCOM_KEY environment variable, then the demo key if allowDemo is set.
// usedDemo reports whether the demo key was chosen so callers can warn.
func ResolveKey(explicit string, allowDemo bool) (key []byte, usedDemo bool, err error) {
	return resolveKey(explicit, os.Getenv(constants.KeyEnvVar), allowDemo)
}

func resolveKey(explicit, env string, allowDemo bool) ([]byte, bool, error) {
	switch {
	case explicit != "":
		key := []byte(explicit)
		return key, false, crypto.CheckKey(key)
	case env != "":
		key := []byte(env)
		return key, false, crypto.CheckKey(key)
	case !allowDemo:
		return nil, false, qerrors.ErrKeyRequired
	case crypto.FIPSMode():
		return nil, false, ErrDemoKeyRefused
	default:
		return []byte(constants.DemoKey), true, nil
	}
}
