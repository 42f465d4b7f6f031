// Package coffin reads and writes the coffin file: a ZIP archive carrying the
// encrypted volume's database ciphertext ("db") and its configuration ("meta").
package coffin

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	// maxMemberSize caps decompressed member size.
	maxMemberSize = 256 << 20
)

// Compile-time interface satisfaction check.
var _ driven.Archive = (*Archive)(nil)

// Archive is the ZIP implementation of the driven.Archive port.
type Archive struct {
	logger *slog.Logger
}

// NewArchive creates an Archive. logger may be nil.
func NewArchive(logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{logger: logger}
}

// Extract writes the db member to layout.CipherDBPath() and the meta member
// to layout.ConfigPath. Members other than db and meta are ignored.
func (a *Archive) Extract(archivePath string, layout driven.Layout) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return fmt.Errorf("open coffin %s: %w: %v", archivePath, driven.ErrCorruptCoffin, err)
		}
		return fmt.Errorf("open coffin %s: %w", archivePath, err)
	}
	defer zr.Close()

	targets := map[string]string{
		driven.MemberDB:   layout.CipherDBPath(),
		driven.MemberMeta: layout.ConfigPath,
	}

	if err := os.MkdirAll(layout.CipherDir, dirMode); err != nil {
		return fmt.Errorf("create cipher dir: %w", err)
	}

	found := make(map[string]bool, len(targets))
	for _, f := range zr.File {
		dst, ok := targets[f.Name]
		if !ok {
			a.logger.Debug("ignoring unknown coffin member", "member", f.Name)
			continue
		}
		if found[f.Name] {
			return fmt.Errorf("%w: duplicate member %q", driven.ErrCorruptCoffin, f.Name)
		}
		if err := extractMember(f, dst); err != nil {
			return err
		}
		found[f.Name] = true
	}

	for name := range targets {
		if !found[name] {
			return fmt.Errorf("%w: missing member %q", driven.ErrCorruptCoffin, name)
		}
	}

	a.logger.Debug("coffin extracted", "path", archivePath, "cipher_dir", layout.CipherDir)
	return nil
}

func extractMember(f *zip.File, dst string) error {
	if f.UncompressedSize64 > maxMemberSize {
		return fmt.Errorf("%w: member %q too large", driven.ErrCorruptCoffin, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open member %q: %v", driven.ErrCorruptCoffin, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, io.LimitReader(rc, maxMemberSize)); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: read member %q: %v", driven.ErrCorruptCoffin, f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// Pack writes layout's db ciphertext and config into a new archive and
// atomically replaces archivePath with it.
func (a *Archive) Pack(layout driven.Layout, archivePath string) error {
	members := []struct {
		name string
		src  string
	}{
		{driven.MemberDB, layout.CipherDBPath()},
		{driven.MemberMeta, layout.ConfigPath},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		if err := addMember(zw, m.name, m.src); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize coffin: %w", err)
	}

	if err := atomic.WriteFile(archivePath, &buf); err != nil {
		return fmt.Errorf("write coffin %s: %w", archivePath, err)
	}
	if err := os.Chmod(archivePath, fileMode); err != nil {
		return fmt.Errorf("chmod coffin %s: %w", archivePath, err)
	}

	a.logger.Debug("coffin packed", "path", archivePath, "bytes", buf.Len())
	return nil
}

func addMember(zw *zip.Writer, name, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s member: %w", name, err)
	}

	// Ciphertext does not compress; the meta member is tiny.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("add %s member: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s member: %w", name, err)
	}
	return nil
}
