// Package cli is the command-line driving adapter: it parses arguments,
// prompts for passwords and maps each mode onto a CoffinService call.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/seccin/internal/adapter/driven/backup"
	"github.com/ericfisherdev/seccin/internal/application"
	"github.com/ericfisherdev/seccin/internal/domain/model"
	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// ErrDeclined is returned when the user answers no to a confirmation.
var ErrDeclined = errors.New("declined by user")

// App runs one command line against a CoffinService.
type App struct {
	svc         *application.CoffinService
	prompter    Prompter
	cache       driven.PasswordCache
	defaultPath string
	version     string
	backupOpts  []backup.Option
	stdout      io.Writer
	stderr      io.Writer
	logger      *slog.Logger
}

// Option configures an App.
type Option func(*App)

// WithPasswordCache caches coffin passwords between invocations.
func WithPasswordCache(cache driven.PasswordCache) Option {
	return func(a *App) { a.cache = cache }
}

// WithBackupOptions passes options to the backup writer used by --export.
func WithBackupOptions(opts ...backup.Option) Option {
	return func(a *App) { a.backupOpts = opts }
}

// WithVersion sets the string printed by --version.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// NewApp creates an App. defaultPath is used when no coffin path is given.
func NewApp(svc *application.CoffinService, prompter Prompter, defaultPath string, stdout, stderr io.Writer, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		svc:         svc,
		prompter:    prompter,
		defaultPath: defaultPath,
		version:     "dev",
		stdout:      stdout,
		stderr:      stderr,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run parses args and executes the selected mode. Usage problems are
// returned wrapping ErrUsage after the usage text has been printed.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		fmt.Fprint(a.stderr, Usage)
		return err
	}

	if cmd.Mode == ModeVersion {
		fmt.Fprintf(a.stdout, "seccin %s\n", a.version)
		return nil
	}

	if cmd.Path == "" {
		cmd.Path = a.defaultPath
	}
	switch cmd.Mode {
	case ModeOpen, ModeEdit, ModeDelete:
		if err := model.ValidateServiceName(cmd.Service); err != nil {
			return err
		}
	}

	if err := a.svc.CheckDependencies(); err != nil {
		return err
	}

	a.logger.Debug("running command", "mode", cmd.Mode, "coffin", cmd.Path)

	switch cmd.Mode {
	case ModeInit:
		return a.init(ctx, cmd)
	case ModeOpen:
		return a.open(ctx, cmd)
	case ModeEdit:
		return a.edit(ctx, cmd)
	case ModeList:
		return a.list(ctx, cmd)
	case ModeDelete:
		return a.delete(ctx, cmd)
	case ModeExport:
		return a.export(ctx, cmd)
	case ModeImport:
		return a.importBackup(ctx, cmd)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrUsage, cmd.Mode)
	}
}

func (a *App) init(ctx context.Context, cmd Command) error {
	exists, err := a.svc.Exists(cmd.Path)
	if err != nil {
		return err
	}
	if exists {
		ok, err := a.prompter.Confirm(fmt.Sprintf("Coffin %s already exists. Overwrite it? [y/N] ", cmd.Path))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("overwrite %s: %w", cmd.Path, ErrDeclined)
		}
	}

	password, err := a.newPassword("Password: ", "Repeat password: ")
	if err != nil {
		return err
	}

	if err := a.svc.Init(ctx, cmd.Path, password, application.InitOptions{Overwrite: exists}); err != nil {
		return err
	}
	a.remember(cmd.Path, password)
	fmt.Fprintf(a.stderr, "Created coffin %s\n", cmd.Path)
	return nil
}

func (a *App) open(ctx context.Context, cmd Command) error {
	var secret model.Secret
	err := a.withPassword(cmd.Path, func(password string) error {
		var err error
		secret, err = a.svc.Open(ctx, cmd.Path, password, cmd.Service)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, secret.Value)
	return nil
}

func (a *App) edit(ctx context.Context, cmd Command) error {
	err := a.withPassword(cmd.Path, func(password string) error {
		return a.svc.Edit(ctx, cmd.Path, password, cmd.Service, func(current string, exists bool) (string, error) {
			if !exists {
				fmt.Fprintf(a.stderr, "New service %s\n", cmd.Service)
			}
			return a.prompter.EditLine(cmd.Service+": ", current)
		})
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "Saved %s\n", cmd.Service)
	return nil
}

func (a *App) list(ctx context.Context, cmd Command) error {
	var services []string
	err := a.withPassword(cmd.Path, func(password string) error {
		var err error
		services, err = a.svc.List(ctx, cmd.Path, password)
		return err
	})
	if err != nil {
		return err
	}
	for _, s := range services {
		fmt.Fprintln(a.stdout, s)
	}
	return nil
}

func (a *App) delete(ctx context.Context, cmd Command) error {
	ok, err := a.prompter.Confirm(fmt.Sprintf("Delete the secret for %s? [y/N] ", cmd.Service))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete %s: %w", cmd.Service, ErrDeclined)
	}

	err = a.withPassword(cmd.Path, func(password string) error {
		return a.svc.Delete(ctx, cmd.Path, password, cmd.Service)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "Deleted %s\n", cmd.Service)
	return nil
}

func (a *App) export(ctx context.Context, cmd Command) error {
	passphrase, err := a.newPassword("Backup passphrase: ", "Repeat backup passphrase: ")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	var count int
	err = a.withPassword(cmd.Path, func(password string) error {
		buf.Reset()
		var err error
		count, err = a.svc.Export(ctx, cmd.Path, password, backup.NewWriter(&buf, passphrase, a.backupOpts...))
		return err
	})
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(cmd.File, &buf); err != nil {
		return fmt.Errorf("write backup file: %w", err)
	}
	if err := os.Chmod(cmd.File, 0o600); err != nil {
		return fmt.Errorf("chmod backup file: %w", err)
	}
	fmt.Fprintf(a.stderr, "Exported %d secrets to %s\n", count, cmd.File)
	return nil
}

func (a *App) importBackup(ctx context.Context, cmd Command) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("read backup file: %w", err)
	}
	passphrase, err := a.prompter.Password("Backup passphrase: ")
	if err != nil {
		return err
	}

	var count int
	err = a.withPassword(cmd.Path, func(password string) error {
		var err error
		count, err = a.svc.Import(ctx, cmd.Path, password, backup.NewReader(bytes.NewReader(data), passphrase))
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "Imported %d secrets into %s\n", count, cmd.Path)
	return nil
}

// newPassword prompts twice and checks both entries match before any coffin
// work starts.
func (a *App) newPassword(prompt, repeat string) (string, error) {
	first, err := a.prompter.Password(prompt)
	if err != nil {
		return "", err
	}
	second, err := a.prompter.Password(repeat)
	if err != nil {
		return "", err
	}
	if err := application.CheckPasswords(first, second); err != nil {
		return "", err
	}
	return first, nil
}

// withPassword runs fn with the coffin password, taken from the cache when
// possible. A cached password that the volume rejects is dropped and the
// user is asked once.
func (a *App) withPassword(path string, fn func(password string) error) error {
	if password, ok := a.cached(path); ok {
		err := fn(password)
		if !errors.Is(err, driven.ErrWrongPassword) {
			return err
		}
		a.logger.Info("cached password rejected, dropping it", "coffin", path)
		if err := a.cache.Delete(path); err != nil {
			a.logger.Warn("failed to drop cached password", "coffin", path, "error", err)
		}
	}

	password, err := a.prompter.Password("Password: ")
	if err != nil {
		return err
	}
	if err := fn(password); err != nil {
		return err
	}
	a.remember(path, password)
	return nil
}

func (a *App) cached(path string) (string, bool) {
	if a.cache == nil {
		return "", false
	}
	password, err := a.cache.Get(path)
	if err != nil {
		if !errors.Is(err, driven.ErrPasswordNotCached) {
			a.logger.Warn("password cache lookup failed", "coffin", path, "error", err)
		}
		return "", false
	}
	return password, true
}

func (a *App) remember(path, password string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(path, password); err != nil {
		a.logger.Warn("failed to cache password", "coffin", path, "error", err)
	}
}
