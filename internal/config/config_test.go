package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every SECCIN_ env var that Load() reads.
var allConfigKeys = []string{
	EnvConfigFile,
	EnvCoffinPath,
	EnvCryptfsBinary,
	EnvUnmountBinary,
	EnvWorkDir,
	EnvMountTimeout,
	EnvPollInterval,
	EnvKeyring,
	EnvLogLevel,
	EnvLogFormat,
	EnvLogFile,
}

// isolateConfigEnv saves and unsets all SECCIN_ env vars so tests don't
// inherit values from the host environment, and points the config file at a
// path that does not exist. t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
}

func writeConfigFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv(EnvConfigFile, path)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "coffin", cfg.CoffinPath)
	assert.Equal(t, "gocryptfs", cfg.CryptfsBinary)
	assert.Equal(t, "fusermount", cfg.UnmountBinary)
	assert.Equal(t, 10*time.Second, cfg.MountTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Keyring)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_File(t *testing.T) {
	isolateConfigEnv(t)
	writeConfigFile(t, `
coffin_path: /home/me/.coffin
cryptfs_binary: /opt/gocryptfs
mount_timeout: 30s
poll_interval: 250ms
keyring: true
log:
  level: debug
  format: json
  file: /tmp/seccin.log
`)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/home/me/.coffin", cfg.CoffinPath)
	assert.Equal(t, "/opt/gocryptfs", cfg.CryptfsBinary)
	assert.Equal(t, "fusermount", cfg.UnmountBinary, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.MountTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.Keyring)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/seccin.log", cfg.Log.File)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateConfigEnv(t)
	writeConfigFile(t, "coffin_path: /from/file\nkeyring: true\nmount_timeout: 30s\n")
	t.Setenv(EnvCoffinPath, "/from/env")
	t.Setenv(EnvKeyring, "false")
	t.Setenv(EnvMountTimeout, "5s")
	t.Setenv(EnvUnmountBinary, "umount")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.CoffinPath)
	assert.False(t, cfg.Keyring)
	assert.Equal(t, 5*time.Second, cfg.MountTimeout)
	assert.Equal(t, "umount", cfg.UnmountBinary)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad env duration", env: map[string]string{EnvMountTimeout: "soon"}},
		{name: "bad env bool", env: map[string]string{EnvKeyring: "maybe"}},
		{name: "zero timeout", env: map[string]string{EnvMountTimeout: "0s"}},
		{name: "interval above timeout", env: map[string]string{EnvMountTimeout: "1s", EnvPollInterval: "2s"}},
		{name: "bad log format", env: map[string]string{EnvLogFormat: "xml"}},
		{name: "bad file duration", file: "poll_interval: often\n"},
		{name: "malformed yaml", file: "coffin_path: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			if tt.file != "" {
				writeConfigFile(t, tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPath_EnvOverride(t *testing.T) {
	t.Setenv(EnvConfigFile, "/etc/seccin.yaml")

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/seccin.yaml", path)
}
