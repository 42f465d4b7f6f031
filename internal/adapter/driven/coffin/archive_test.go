package coffin

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/seccin/internal/domain/port/driven"
)

// writeLayout materialises db and meta files for a layout under dir.
func writeLayout(t *testing.T, dir string, db, meta []byte) driven.Layout {
	t.Helper()
	layout := driven.NewLayout(dir)
	require.NoError(t, os.MkdirAll(layout.CipherDir, 0o700))
	require.NoError(t, os.WriteFile(layout.CipherDBPath(), db, 0o600))
	require.NoError(t, os.WriteFile(layout.ConfigPath, meta, 0o600))
	return layout
}

// writeZip builds an archive with the given members in order.
func writeZip(t *testing.T, path string, members map[string][]byte, order ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(members[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestArchive_PackExtractRoundTrip(t *testing.T) {
	a := NewArchive(nil)
	src := writeLayout(t, t.TempDir(), []byte("ciphertext\x00\x01"), []byte(`{"Version":2}`))
	coffinPath := filepath.Join(t.TempDir(), "coffin")

	require.NoError(t, a.Pack(src, coffinPath))

	dst := driven.NewLayout(t.TempDir())
	require.NoError(t, a.Extract(coffinPath, dst))

	db, err := os.ReadFile(dst.CipherDBPath())
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext\x00\x01"), db)

	meta, err := os.ReadFile(dst.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"Version":2}`), meta)
}

func TestArchive_PackWritesExactlyTwoMembers(t *testing.T) {
	a := NewArchive(nil)
	src := writeLayout(t, t.TempDir(), []byte("db"), []byte("meta"))
	// Stray files in the cipher dir must not leak into the coffin.
	require.NoError(t, os.WriteFile(filepath.Join(src.CipherDir, "db-journal"), []byte("x"), 0o600))
	coffinPath := filepath.Join(t.TempDir(), "coffin")

	require.NoError(t, a.Pack(src, coffinPath))

	zr, err := zip.OpenReader(coffinPath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"db", "meta"}, names)
}

func TestArchive_PackSetsOwnerOnlyMode(t *testing.T) {
	a := NewArchive(nil)
	src := writeLayout(t, t.TempDir(), []byte("db"), []byte("meta"))
	coffinPath := filepath.Join(t.TempDir(), "coffin")
	require.NoError(t, os.WriteFile(coffinPath, []byte("old"), 0o644))

	require.NoError(t, a.Pack(src, coffinPath))

	info, err := os.Stat(coffinPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestArchive_PackMissingSourceKeepsExistingCoffin(t *testing.T) {
	a := NewArchive(nil)
	layout := driven.NewLayout(t.TempDir())
	coffinPath := filepath.Join(t.TempDir(), "coffin")
	require.NoError(t, os.WriteFile(coffinPath, []byte("previous"), 0o600))

	err := a.Pack(layout, coffinPath)
	require.Error(t, err)

	data, err := os.ReadFile(coffinPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("previous"), data)
}

func TestArchive_ExtractMissingMember(t *testing.T) {
	tests := []struct {
		name    string
		members map[string][]byte
		order   []string
	}{
		{
			name:    "no meta",
			members: map[string][]byte{"db": []byte("db")},
			order:   []string{"db"},
		},
		{
			name:    "no db",
			members: map[string][]byte{"meta": []byte("meta")},
			order:   []string{"meta"},
		},
		{
			name:    "empty archive",
			members: map[string][]byte{},
			order:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coffinPath := filepath.Join(t.TempDir(), "coffin")
			writeZip(t, coffinPath, tt.members, tt.order...)

			err := NewArchive(nil).Extract(coffinPath, driven.NewLayout(t.TempDir()))
			assert.ErrorIs(t, err, driven.ErrCorruptCoffin)
		})
	}
}

func TestArchive_ExtractIgnoresUnknownMembers(t *testing.T) {
	coffinPath := filepath.Join(t.TempDir(), "coffin")
	writeZip(t, coffinPath, map[string][]byte{
		"db":        []byte("db"),
		"meta":      []byte("meta"),
		"notes.txt": []byte("extra"),
	}, "notes.txt", "db", "meta")

	workDir := t.TempDir()
	dst := driven.NewLayout(workDir)
	require.NoError(t, NewArchive(nil).Extract(coffinPath, dst))

	_, err := os.Stat(filepath.Join(workDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst.CipherDir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_ExtractDuplicateMember(t *testing.T) {
	coffinPath := filepath.Join(t.TempDir(), "coffin")
	f, err := os.Create(coffinPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"db", "db", "meta"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	err = NewArchive(nil).Extract(coffinPath, driven.NewLayout(t.TempDir()))
	assert.ErrorIs(t, err, driven.ErrCorruptCoffin)
}

func TestArchive_ExtractNotAZip(t *testing.T) {
	coffinPath := filepath.Join(t.TempDir(), "coffin")
	require.NoError(t, os.WriteFile(coffinPath, []byte("definitely not a zip file"), 0o600))

	err := NewArchive(nil).Extract(coffinPath, driven.NewLayout(t.TempDir()))
	assert.ErrorIs(t, err, driven.ErrCorruptCoffin)
}

func TestArchive_ExtractMissingFile(t *testing.T) {
	err := NewArchive(nil).Extract(filepath.Join(t.TempDir(), "absent"), driven.NewLayout(t.TempDir()))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
