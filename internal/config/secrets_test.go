package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

const testKey = "ground-and-bus-shared-secret"

func TestResolveKeyExplicitWins(t *testing.T) {
	key, demo, err := resolveKey(testKey, "from-environment-key", true)
	require.NoError(t, err)
	assert.False(t, demo)
	assert.Equal(t, []byte(testKey), key)
}

func TestResolveKeyFromEnv(t *testing.T) {
	t.Setenv(constants.KeyEnvVar, testKey)

	key, demo, err := ResolveKey("", false)
	require.NoError(t, err)
	assert.False(t, demo)
	assert.Equal(t, []byte(testKey), key)
}

func TestResolveKeyRequired(t *testing.T) {
	_, _, err := resolveKey("", "", false)
	assert.ErrorIs(t, err, qerrors.ErrKeyRequired)
}

func TestResolveKeyDemo(t *testing.T) {
	key, demo, err := resolveKey("", "", true)
	if crypto.FIPSMode() {
		assert.ErrorIs(t, err, ErrDemoKeyRefused)
		return
	}
	require.NoError(t, err)
	assert.True(t, demo)
	assert.Equal(t, []byte(constants.DemoKey), key)
}

func TestResolveKeyWeak(t *testing.T) {
	if !crypto.FIPSMode() {
		t.Skip("short keys are only refused in FIPS builds")
	}
	_, _, err := resolveKey("short", "", false)
	assert.ErrorIs(t, err, qerrors.ErrWeakKey)
}
