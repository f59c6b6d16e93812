package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RING_REFRESH_TOKEN", "rt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "rt", cfg.RefreshToken)
	assert.Equal(t, time.Second, cfg.ICEWait)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.KeepAliveTimeout)
	assert.Equal(t, "data/token.json", cfg.TokenFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RING_USERNAME", "user@example.com")
	t.Setenv("RING_PASSWORD", "secret")
	t.Setenv("RING_DEVICE_ID", "123456")
	t.Setenv("RING_ICE_WAIT", "2500ms")
	t.Setenv("RING_KEEPALIVE_TIMEOUT", "0s")
	t.Setenv("RING_SIGNAL_URL", "ws://localhost:9000/ws")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(123456), cfg.DeviceID)
	assert.Equal(t, 2500*time.Millisecond, cfg.ICEWait)
	assert.Zero(t, cfg.KeepAliveTimeout)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.SignalURL)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := &Config{ICEWait: time.Second, Username: "only-user"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_StoredTokenIsEnough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	cfg := &Config{ICEWait: time.Second, TokenFile: path}
	assert.Error(t, cfg.Validate())

	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"rt"}`), 0o600))
	assert.NoError(t, cfg.Validate())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
