// Package cryptfs drives gocryptfs, the external encrypted filesystem that
// holds the coffin's database.
package cryptfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// exitPasswordIncorrect is the gocryptfs exit code for a rejected password.
const exitPasswordIncorrect = 12

var errNotMounted = errors.New("not mounted yet")

// Config holds the external binaries and timing for the crypto process.
type Config struct {
	Binary        string
	UnmountBinary string
	MountTimeout  time.Duration
	PollInterval  time.Duration
}

// DefaultConfig returns gocryptfs on PATH with fusermount for unmounting.
func DefaultConfig() Config {
	return Config{
		Binary:        "gocryptfs",
		UnmountBinary: "fusermount",
		MountTimeout:  10 * time.Second,
		PollInterval:  100 * time.Millisecond,
	}
}

// MountProbe reports whether path currently is a mount point.
type MountProbe func(path string) (bool, error)

// Option configures a Gocryptfs.
type Option func(*Gocryptfs)

// WithMountProbe replaces the device-id mount probe.
func WithMountProbe(probe MountProbe) Option {
	return func(g *Gocryptfs) { g.probe = probe }
}

// Compile-time interface satisfaction check.
var _ driven.Volume = (*Gocryptfs)(nil)

// Gocryptfs implements driven.Volume by spawning the gocryptfs binary.
type Gocryptfs struct {
	cfg    Config
	logger *slog.Logger
	probe  MountProbe
}

// New creates a Gocryptfs adapter. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Gocryptfs {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.UnmountBinary == "" {
		cfg.UnmountBinary = def.UnmountBinary
	}
	if cfg.MountTimeout <= 0 {
		cfg.MountTimeout = def.MountTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gocryptfs{cfg: cfg, logger: logger, probe: DeviceProbe}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckDependencies verifies the crypto and unmount binaries are installed.
func (g *Gocryptfs) CheckDependencies() error {
	for _, bin := range []string{g.cfg.Binary, g.cfg.UnmountBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s not found: %v", driven.ErrMissingDependency, bin, err)
		}
	}
	return nil
}

// Create initialises an empty volume with plaintext file names, so the
// database ciphertext keeps the name "db" inside the cipher dir.
func (g *Gocryptfs) Create(ctx context.Context, layout driven.Layout, password string) error {
	if err := os.MkdirAll(layout.CipherDir, 0o700); err != nil {
		return fmt.Errorf("create cipher dir: %w", err)
	}

	args := []string{"-init", "-plaintextnames", "-q", "-config", layout.ConfigPath, layout.CipherDir}
	g.logger.Debug("initialising volume", "binary", g.cfg.Binary, "args", args)

	cmd := exec.CommandContext(ctx, g.cfg.Binary, args...)
	p, err := startProcess(cmd, password, 2, g.logger)
	if err != nil {
		return fmt.Errorf("start %s: %w", g.cfg.Binary, err)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		p.kill()
		return ctx.Err()
	}

	if code := p.exitCode(); code != 0 {
		return fmt.Errorf("create volume: %s exited with status %d: %s", g.cfg.Binary, code, p.transcript())
	}
	return nil
}

// Mount starts gocryptfs in the foreground and polls at a fixed interval
// until the mount point appears, the process exits, or MountTimeout passes.
func (g *Gocryptfs) Mount(ctx context.Context, layout driven.Layout, password string) (driven.Mount, error) {
	if err := os.MkdirAll(layout.MountPoint, 0o700); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	args := []string{"-fg", "-q", "-config", layout.ConfigPath, layout.CipherDir, layout.MountPoint}
	g.logger.Debug("mounting volume", "binary", g.cfg.Binary, "args", args)

	// Not bound to ctx: killing a live FUSE daemon leaves a dead mount behind.
	cmd := exec.Command(g.cfg.Binary, args...)
	p, err := startProcess(cmd, password, 1, g.logger)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", g.cfg.Binary, err)
	}

	start := time.Now()
	if err := g.waitForMount(ctx, p, layout.MountPoint); err != nil {
		p.kill()
		return nil, err
	}

	g.logger.Debug("volume mounted", "mount_point", layout.MountPoint, "waited", time.Since(start))
	return &mount{path: layout.MountPoint, proc: p, cfg: g.cfg, logger: g.logger}, nil
}

func (g *Gocryptfs) waitForMount(ctx context.Context, p *process, mountPoint string) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.MountTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(g.cfg.PollInterval), waitCtx)

	err := backoff.Retry(func() error {
		if p.exited() {
			return backoff.Permanent(g.exitError(p))
		}
		mounted, err := g.probe(mountPoint)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("probe mount point: %w", err))
		}
		if !mounted {
			return errNotMounted
		}
		return nil
	}, b)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", driven.ErrMountTimeout, g.cfg.MountTimeout)
	}
	return err
}

func (g *Gocryptfs) exitError(p *process) error {
	code := p.exitCode()
	if code == exitPasswordIncorrect {
		return driven.ErrWrongPassword
	}
	return fmt.Errorf("%w: %s exited with status %d: %s", driven.ErrMountFailed, g.cfg.Binary, code, p.transcript())
}

type mount struct {
	path   string
	proc   *process
	cfg    Config
	logger *slog.Logger
}

func (m *mount) Path() string {
	return m.path
}

// Unmount detaches the volume and waits for the foreground gocryptfs to exit,
// killing it if it lingers past MountTimeout.
func (m *mount) Unmount(ctx context.Context) error {
	args := unmountArgs(m.cfg.UnmountBinary, m.path)
	out, err := exec.CommandContext(ctx, m.cfg.UnmountBinary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmount %s: %w: %s", m.path, err, strings.TrimSpace(string(out)))
	}

	timer := time.NewTimer(m.cfg.MountTimeout)
	defer timer.Stop()

	select {
	case <-m.proc.done:
	case <-timer.C:
		m.logger.Warn("crypto process did not exit after unmount, killing", "mount_point", m.path)
		m.proc.kill()
	}

	m.logger.Debug("volume unmounted", "mount_point", m.path, "exit_code", m.proc.exitCode())
	return nil
}

// unmountArgs builds the argument list for the platform unmount tool:
// fusermount needs -u, umount takes the bare path.
func unmountArgs(binary, path string) []string {
	base := filepath.Base(binary)
	if strings.HasPrefix(base, "fusermount") {
		return []string{"-u", path}
	}
	return []string{path}
}
