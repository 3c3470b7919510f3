package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		tempDir := filepath.Join(t.TempDir(), "nested", "scratch")

		storage, err := NewLocalStorage(tempDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.TempDir() != tempDir {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), tempDir)
		}

		info, err := os.Stat(tempDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "mediaforge")
		if storage.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), expected)
		}
	})
}

func TestLocalStorage_TempPath(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()

	first, err := storage.TempPath(ctx, "sample.mp4")
	if err != nil {
		t.Fatalf("TempPath() error = %v", err)
	}
	second, err := storage.TempPath(ctx, "sample.mp4")
	if err != nil {
		t.Fatalf("TempPath() error = %v", err)
	}

	if first == second {
		t.Errorf("expected unique paths, got %s twice", first)
	}
	if filepath.Ext(first) != ".mp4" {
		t.Errorf("expected .mp4 extension, got %s", first)
	}
	if !strings.HasPrefix(filepath.Base(first), "sample_") {
		t.Errorf("expected sample_ prefix, got %s", first)
	}
	if _, err := os.Stat(first); err != nil {
		t.Errorf("expected reserved file to exist: %v", err)
	}

	if err := storage.CleanupTemp(ctx, []string{first, second, filepath.Join(storage.TempDir(), "missing")}); err != nil {
		t.Fatalf("CleanupTemp() error = %v", err)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", first)
	}
}

func TestLocalStorage_ContextCancelled(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := storage.TempPath(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("TempPath() error = %v, want context.Canceled", err)
	}
	if err := storage.CleanupTemp(ctx, []string{"a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("CleanupTemp() error = %v, want context.Canceled", err)
	}
}

func TestLocalStorage_Publish(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	_, err = storage.Publish(context.Background(), "key", "path")
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("Publish() error = %v, want ErrS3NotConfigured", err)
	}
}
