package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ericfisherdev/seccin/internal/adapter/driven/coffin"
	"github.com/ericfisherdev/seccin/internal/adapter/driven/cryptfs"
	"github.com/ericfisherdev/seccin/internal/adapter/driven/keyring"
	sqliteadapter "github.com/ericfisherdev/seccin/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/seccin/internal/adapter/driving/cli"
	"github.com/ericfisherdev/seccin/internal/application"
	"github.com/ericfisherdev/seccin/internal/config"
	"github.com/ericfisherdev/seccin/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Load configuration (defaults, config file, SECCIN_* env).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Logging goes to stderr so stdout only ever carries secrets and lists.
	logger, closer := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, os.Stderr)
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			slog.Error("error closing log file", "error", closeErr)
		}
	}()
	logger.Debug("config loaded",
		"coffin", cfg.CoffinPath,
		"cryptfs_binary", cfg.CryptfsBinary,
		"work_dir", cfg.WorkDir,
		"mount_timeout", cfg.MountTimeout,
		"keyring", cfg.Keyring,
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM). Teardown runs detached
	// from it, so an interrupted session still unmounts.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Wire adapters.
	volume := cryptfs.New(cryptfs.Config{
		Binary:        cfg.CryptfsBinary,
		UnmountBinary: cfg.UnmountBinary,
		MountTimeout:  cfg.MountTimeout,
		PollInterval:  cfg.PollInterval,
	}, logger)
	svc := application.NewCoffinService(coffin.NewArchive(logger), volume, sqliteadapter.OpenStore, cfg.WorkDir, logger)

	opts := []cli.Option{cli.WithVersion(version)}
	if cfg.Keyring {
		opts = append(opts, cli.WithPasswordCache(keyring.NewCache(keyring.DefaultService)))
	}

	// 5. Run the command.
	app := cli.NewApp(svc, cli.NewTerminalPrompter(os.Stdin, os.Stderr), cfg.CoffinPath, os.Stdout, os.Stderr, logger, opts...)
	return app.Run(ctx, args)
}
