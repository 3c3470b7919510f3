package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaforge/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNewDependencies_Defaults(t *testing.T) {
	cfg := &config.Config{TempDir: t.TempDir(), QueueSize: 4, Workers: 1}

	deps, err := NewDependencies(context.Background(), cfg, testLogger(), nil)
	require.NoError(t, err)

	assert.NotNil(t, deps.Engine)
	assert.Equal(t, 1, deps.Engine.Runner().Workers())
	_, err = deps.Engine.Catalog().Resolution("1080p")
	assert.NoError(t, err)

	assert.NoError(t, deps.Close(context.Background()))
}

func TestNewDependencies_PresetsFile(t *testing.T) {
	dir := t.TempDir()
	presets := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(presets, []byte(`
resolutions:
  - name: tiny
    width: 320
    height: 180
    bitrate_kbps: 250
    crf: 30
`), 0600))

	cfg := &config.Config{TempDir: dir, PresetsFile: presets}
	deps, err := NewDependencies(context.Background(), cfg, testLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = deps.Close(context.Background()) }()

	res := deps.Engine.Catalog().Resolutions()
	require.Len(t, res, 1)
	assert.Equal(t, "tiny", res[0].Name)
}

func TestNewDependencies_BadPresetsFile(t *testing.T) {
	cfg := &config.Config{TempDir: t.TempDir(), PresetsFile: filepath.Join(t.TempDir(), "missing.yaml")}

	_, err := NewDependencies(context.Background(), cfg, testLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load presets")
}

func TestNewDependencies_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{TempDir: dir, DatabasePath: filepath.Join(dir, "jobs.db")}

	deps, err := NewDependencies(context.Background(), cfg, testLogger(), nil)
	if err != nil {
		// The driver needs cgo.
		t.Skipf("sqlite unavailable: %v", err)
	}
	assert.NoError(t, deps.Close(context.Background()))
	assert.FileExists(t, cfg.DatabasePath)
}
