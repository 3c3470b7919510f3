package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3Storage(t *testing.T, endpoint string) *S3Storage {
	t.Helper()

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	return storage
}

func TestNewS3Storage(t *testing.T) {
	storage := newTestS3Storage(t, "http://localhost:4566")

	assert.Equal(t, "test-bucket", storage.bucket)
	assert.Equal(t, "us-east-1", storage.region)

	// Scratch handling is inherited from LocalStorage.
	path, err := storage.TempPath(context.Background(), "x.png")
	require.NoError(t, err)
	require.NoError(t, storage.CleanupTemp(context.Background(), []string{path}))
}

func TestS3Storage_Publish_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.True(t, strings.Contains(r.URL.Path, "/test-bucket/outputs/clip.png"), r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "encoded bytes")

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := newTestS3Storage(t, server.URL)

	path := filepath.Join(t.TempDir(), "clip.png")
	require.NoError(t, os.WriteFile(path, []byte("encoded bytes"), 0600))

	url, err := storage.Publish(context.Background(), "outputs/clip.png", path)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/test-bucket/outputs/clip.png", url)
}

func TestS3Storage_Publish_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	storage := newTestS3Storage(t, server.URL)

	_, err := storage.Publish(context.Background(), "k", filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorContains(t, err, "open output")

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	_, err = storage.Publish(context.Background(), "k", path)
	assert.ErrorContains(t, err, "upload to S3")
}

func TestS3Storage_ObjectURL(t *testing.T) {
	s := &S3Storage{bucket: "b", region: "eu-west-1"}
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/a/b.png", s.objectURL("a/b.png"))
}
