package storage

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestWriteToFiles_Matches(t *testing.T) {
	w := WriteToFiles{FilePrefix: "thumb_", FileSuffix: ".png"}

	assert.True(t, w.Matches("thumb_001.png"))
	assert.False(t, w.Matches("thumb_.png"))
	assert.False(t, w.Matches("other_001.png"))
	assert.False(t, w.Matches("thumb_001.jpeg"))
	assert.Equal(t, filepath.Join("out", "thumb_007.png"), WriteToFiles{Path: "out", FilePrefix: "thumb_", FileSuffix: ".png"}.FilePath("007"))
}

func TestWriteToFiles_Validate(t *testing.T) {
	zero := uint64(0)
	dir := filepath.Join(t.TempDir(), "new")

	assert.ErrorIs(t, WriteToFiles{}.Validate(), ErrInvalidSink)
	assert.ErrorIs(t, WriteToFiles{Path: dir, MaxFiles: &zero}.Validate(), ErrInvalidSink)
	assert.ErrorIs(t, WriteToFiles{Path: dir, FilePrefix: "a/b"}.Validate(), ErrInvalidSink)

	require.NoError(t, WriteToFiles{Path: dir}.Validate())
	assert.DirExists(t, dir)
}

func TestMakeRoom(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	touch(t, filepath.Join(dir, "f_000.png"), base)
	touch(t, filepath.Join(dir, "f_001.png"), base.Add(time.Minute))
	touch(t, filepath.Join(dir, "f_002.png"), base.Add(2*time.Minute))
	touch(t, filepath.Join(dir, "unrelated.txt"), base)

	max := uint64(3)
	w := WriteToFiles{Path: dir, FilePrefix: "f_", FileSuffix: ".png", MaxFiles: &max}

	removed, err := w.MakeRoom(w.FilePath("003"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "f_000.png")}, removed)
	assert.Equal(t, []string{"f_001.png", "f_002.png", "unrelated.txt"}, listDir(t, dir))

	// Overwriting an existing file keeps it and only trims what exceeds the cap.
	removed, err = w.MakeRoom(w.FilePath("002"))
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestMakeRoom_TiesBrokenByName(t *testing.T) {
	dir := t.TempDir()
	same := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(dir, "b.log"), same)
	touch(t, filepath.Join(dir, "a.log"), same)

	max := uint64(1)
	w := WriteToFiles{Path: dir, FileSuffix: ".log", MaxFiles: &max}

	removed, err := w.MakeRoom(filepath.Join(dir, "c.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")}, removed)
}

func TestMakeRoom_Unlimited(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "x.png"), time.Now())

	removed, err := WriteToFiles{Path: dir}.MakeRoom(filepath.Join(dir, "y.png"))
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestPrune_MissingDir(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "nope"), func(string) bool { return true }, 1, "")
	require.NoError(t, err)
	assert.Nil(t, removed)
}
