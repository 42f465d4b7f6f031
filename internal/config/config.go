// Package config loads seccin configuration: built-in defaults, then an
// optional YAML file, then SECCIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigFile    = "SECCIN_CONFIG"
	EnvCoffinPath    = "SECCIN_COFFIN"
	EnvCryptfsBinary = "SECCIN_CRYPTFS_BINARY"
	EnvUnmountBinary = "SECCIN_UNMOUNT_BINARY"
	EnvWorkDir       = "SECCIN_WORK_DIR"
	EnvMountTimeout  = "SECCIN_MOUNT_TIMEOUT"
	EnvPollInterval  = "SECCIN_POLL_INTERVAL"
	EnvKeyring       = "SECCIN_KEYRING"
	EnvLogLevel      = "SECCIN_LOG_LEVEL"
	EnvLogFormat     = "SECCIN_LOG_FORMAT"
	EnvLogFile       = "SECCIN_LOG_FILE"
)

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config holds the application configuration.
type Config struct {
	CoffinPath    string
	CryptfsBinary string
	UnmountBinary string
	// WorkDir is where session work dirs are created; empty means os.TempDir.
	WorkDir      string
	MountTimeout time.Duration
	PollInterval time.Duration
	// Keyring caches coffin passwords in the OS keyring.
	Keyring bool
	Log     LogConfig
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		CoffinPath:    "coffin",
		CryptfsBinary: "gocryptfs",
		UnmountBinary: "fusermount",
		WorkDir:       "",
		MountTimeout:  10 * time.Second,
		PollInterval:  100 * time.Millisecond,
		Keyring:       false,
		Log:           LogConfig{Level: "warn", Format: "text"},
	}
}

// Path returns the config file location: $SECCIN_CONFIG, else
// seccin/config.yaml under the user config dir.
func Path() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "seccin", "config.yaml"), nil
}

// Load reads configuration and returns a validated Config. A missing config
// file is not an error; a malformed one is.
func Load() (*Config, error) {
	cfg := Defaults()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fileConfig mirrors Config with string durations so "10s" parses.
type fileConfig struct {
	CoffinPath    string    `yaml:"coffin_path"`
	CryptfsBinary string    `yaml:"cryptfs_binary"`
	UnmountBinary string    `yaml:"unmount_binary"`
	WorkDir       string    `yaml:"work_dir"`
	MountTimeout  string    `yaml:"mount_timeout"`
	PollInterval  string    `yaml:"poll_interval"`
	Keyring       *bool     `yaml:"keyring"`
	Log           LogConfig `yaml:"log"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.CoffinPath, fc.CoffinPath)
	setString(&cfg.CryptfsBinary, fc.CryptfsBinary)
	setString(&cfg.UnmountBinary, fc.UnmountBinary)
	setString(&cfg.WorkDir, fc.WorkDir)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	setString(&cfg.Log.File, fc.Log.File)
	if fc.Keyring != nil {
		cfg.Keyring = *fc.Keyring
	}
	if err := setDuration(&cfg.MountTimeout, fc.MountTimeout, "mount_timeout"); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := setDuration(&cfg.PollInterval, fc.PollInterval, "poll_interval"); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.CoffinPath, os.Getenv(EnvCoffinPath))
	setString(&cfg.CryptfsBinary, os.Getenv(EnvCryptfsBinary))
	setString(&cfg.UnmountBinary, os.Getenv(EnvUnmountBinary))
	setString(&cfg.WorkDir, os.Getenv(EnvWorkDir))
	setString(&cfg.Log.Level, os.Getenv(EnvLogLevel))
	setString(&cfg.Log.Format, os.Getenv(EnvLogFormat))
	setString(&cfg.Log.File, os.Getenv(EnvLogFile))

	if v := strings.TrimSpace(os.Getenv(EnvKeyring)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s has invalid boolean %q: %w", EnvKeyring, v, err)
		}
		cfg.Keyring = b
	}
	if err := setDuration(&cfg.MountTimeout, os.Getenv(EnvMountTimeout), EnvMountTimeout); err != nil {
		return err
	}
	return setDuration(&cfg.PollInterval, os.Getenv(EnvPollInterval), EnvPollInterval)
}

func (c *Config) validate() error {
	if c.MountTimeout <= 0 {
		return fmt.Errorf("mount timeout must be positive, got %s", c.MountTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PollInterval > c.MountTimeout {
		return fmt.Errorf("poll interval %s exceeds mount timeout %s", c.PollInterval, c.MountTimeout)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	*dst = d
	return nil
}
