package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// sessionFunc is the single database step of a session.
type sessionFunc func(ctx context.Context, store driven.SecretStore) error

type sessionKind int

const (
	// sessionExisting extracts an existing coffin.
	sessionExisting sessionKind = iota
	// sessionCreate initialises a fresh volume instead of extracting.
	sessionCreate
)

// withSession runs the five-step coffin sequence around fn: extract (or
// create), mount, run fn against the store, tear down, re-archive.
//
// Teardown always closes the store and unmounts. The coffin is re-packed only
// when fn, the store close and the unmount all succeeded. The work dir is
// removed unless the volume could not be unmounted, since removing a live
// mount point would delete the ciphertext through the mount.
func (s *CoffinService) withSession(ctx context.Context, op, path, password string, kind sessionKind, fn sessionFunc) (err error) {
	start := time.Now()
	log := s.logger.With("session_id", uuid.NewString(), "op", op, "coffin", path)

	if kind == sessionExisting {
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCoffinNotFound, path)
		}
	}

	workDir, err := os.MkdirTemp(s.workBase, "seccin-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	keepWorkDir := false
	defer func() {
		if keepWorkDir {
			log.Error("volume still mounted, leaving work dir in place", "work_dir", workDir)
			return
		}
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn("error removing work dir", "work_dir", workDir, "error", rmErr)
		}
	}()

	layout := driven.NewLayout(workDir)

	// 1. Extract or create.
	if kind == sessionCreate {
		if err := s.volume.Create(ctx, layout, password); err != nil {
			return fmt.Errorf("create volume: %w", err)
		}
	} else {
		if err := s.archive.Extract(path, layout); err != nil {
			return fmt.Errorf("extract coffin: %w", err)
		}
	}
	log.Debug("coffin unpacked", "work_dir", workDir)

	// 2-3. Spawn the crypto process and wait for the mount.
	m, err := s.volume.Mount(ctx, layout, password)
	if err != nil {
		return fmt.Errorf("mount coffin: %w", err)
	}
	log.Debug("coffin mounted", "mount_point", m.Path())

	// 4. One database step.
	opErr := s.runStoreStep(ctx, log, layout, fn)

	// 5. Tear down, even when ctx was cancelled.
	if unmountErr := m.Unmount(context.WithoutCancel(ctx)); unmountErr != nil {
		keepWorkDir = true
		if opErr != nil {
			log.Error("error unmounting coffin", "error", unmountErr)
			return opErr
		}
		return fmt.Errorf("unmount coffin: %w", unmountErr)
	}
	if opErr != nil {
		return opErr
	}

	if err := s.archive.Pack(layout, path); err != nil {
		return fmt.Errorf("re-archive coffin: %w", err)
	}

	log.Info("session complete", "duration", time.Since(start))
	return nil
}

// runStoreStep opens the store, runs fn and closes the store. Close errors
// after a failed fn are logged on the session logger.
func (s *CoffinService) runStoreStep(ctx context.Context, log *slog.Logger, layout driven.Layout, fn sessionFunc) error {
	store, err := s.openStore(ctx, layout.PlainDBPath())
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}

	opErr := fn(ctx, store)

	if closeErr := store.Close(); closeErr != nil {
		if opErr == nil {
			return fmt.Errorf("close secret store: %w", closeErr)
		}
		log.Error("error closing secret store", "error", closeErr)
	}
	return opErr
}
