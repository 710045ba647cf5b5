package download

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csound-plugins/risset/internal/errors"
)

func zipFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("libklib.so")
	require.NoError(t, err)
	_, err = f.Write([]byte("not a real shared library"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetch(t *testing.T) {
	payload := zipFixture(t)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Contains(t, r.Header.Get("User-Agent"), "risset/")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	client := NewClient()
	got, err := client.Fetch(context.Background(), srv.URL+"/klib.zip", "")
	require.NoError(t, err)
	assert.Equal(t, "klib.zip", filepath.Base(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFetchCachesPerURL(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	client := NewClient()
	url := srv.URL + "/plugin.zip"
	first, err := client.Fetch(context.Background(), url, "")
	require.NoError(t, err)
	second, err := client.Fetch(context.Background(), url, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, requests, "second fetch should be served from the cache")
}

func TestFetchCacheHitCopiesToDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	client := NewClient()
	url := srv.URL + "/plugin.zip"
	_, err := client.Fetch(context.Background(), url, "")
	require.NoError(t, err)

	destDir := t.TempDir()
	dest, err := client.Fetch(context.Background(), url, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "plugin.zip"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestFetchIntoDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	client := NewClient()
	dest, err := client.Fetch(context.Background(), srv.URL+"/plugin.so", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "plugin.so"), dest)
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewClient()
	_, err := client.Fetch(context.Background(), srv.URL+"/missing.zip", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.IsKind(err, errors.KindNetwork))
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient()
	_, err := client.Fetch(context.Background(), srv.URL+"/plugin.zip", "")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, errors.IsKind(err, errors.KindNetwork))
}

func TestFetchConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient()
	_, err := client.Fetch(context.Background(), srv.URL+"/plugin.zip", "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNetwork))
}

func TestFetchContentDispositionFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="klib-1.14.0.zip"`)
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	client := NewClient()
	got, err := client.Fetch(context.Background(), srv.URL+"/download", "")
	require.NoError(t, err)
	assert.Equal(t, "klib-1.14.0.zip", filepath.Base(got))
}

func TestVerifyArtifactZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klib.zip")
	require.NoError(t, os.WriteFile(path, zipFixture(t), 0o644))
	assert.NoError(t, VerifyArtifact(path))
}

func TestVerifyArtifactMimetypeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klib.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not an archive"), 0o644))
	err := VerifyArtifact(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInstallFailure))
	assert.Contains(t, err.Error(), "application/zip")
}

func TestVerifyArtifactNotFoundBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klib.zip")
	require.NoError(t, os.WriteFile(path, []byte("Not Found"), 0o644))
	err := VerifyArtifact(path)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestVerifyArtifactUnknownSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klib.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	err := VerifyArtifact(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact suffix")
}

func TestSha256AndVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.bin")
	content := []byte("some artifact bytes")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])

	got, err := Sha256(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.NoError(t, VerifyChecksum(path, want))
	err = VerifyChecksum(path, "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
