// Package download fetches plugin artifacts over HTTP, caches them for
// the lifetime of the process, and verifies that the downloaded content
// matches what its file extension promises.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/version"
)

// ErrNotFound marks a download whose url pointed to a missing resource,
// either via the HTTP status or a "Not Found" placeholder body.
var ErrNotFound = stderrors.New("resource not found")

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// Client downloads files, caching each url once per process.
type Client struct {
	httpClient *http.Client
	userAgent  string

	cacheDir string
	// downloaded maps url to the cached local file.
	downloaded map[string]string
}

// NewClient creates a download client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		userAgent:  "risset/" + version.Version,
		downloaded: make(map[string]string),
	}
}

// Fetch downloads url into destDir, or into the client's cache directory
// when destDir is empty. A url already downloaded in this process is
// served from the cache. Returns the path of the local file.
func (c *Client) Fetch(ctx context.Context, url, destDir string) (string, error) {
	if cached, ok := c.downloaded[url]; ok {
		if destDir == "" {
			slog.Debug("found url in the download cache", logfields.URL(url))
			return cached, nil
		}
		dest := filepath.Join(destDir, filepath.Base(cached))
		if err := copyFile(cached, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	slog.Debug("downloading", logfields.URL(url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindInvalidArgument, "invalid url %s", url)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindNetwork, "connection error while trying to download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.Wrapf(ErrNotFound, errors.KindNetwork, "url %s not found", url)
	}
	if resp.StatusCode >= 400 {
		return "", errors.Newf(errors.KindNetwork, "download of %s failed with status %s", url, resp.Status)
	}

	filename := path.Base(url)
	if name := filenameFromContentDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		filename = name
	}

	cacheDir, err := c.ensureCacheDir()
	if err != nil {
		return "", err
	}
	cachePath := filepath.Join(cacheDir, filename)
	out, err := os.Create(cachePath)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not create %s", cachePath)
	}
	_, err = io.Copy(out, resp.Body)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not write downloaded content of %s", url)
	}
	c.downloaded[url] = cachePath

	if destDir == "" {
		return cachePath, nil
	}
	dest := filepath.Join(destDir, filename)
	if err := copyFile(cachePath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Client) ensureCacheDir() (string, error) {
	if c.cacheDir != "" {
		return c.cacheDir, nil
	}
	dir, err := os.MkdirTemp("", "risset-downloads-*")
	if err != nil {
		return "", errors.Wrap(err, errors.KindIO, "could not create download cache directory")
	}
	c.cacheDir = dir
	return dir, nil
}

// filenameFromContentDisposition extracts the filename parameter of a
// Content-Disposition header, or "".
func filenameFromContentDisposition(cd string) string {
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// artifact extensions risset installs, with the mimetypes accepted for
// each. Shared libraries detect differently per object format.
var expectedMimetypes = map[string][]string{
	".zip":   {"application/zip"},
	".so":    {"application/x-sharedlib", "application/x-executable", "application/x-elf"},
	".dylib": {"application/x-mach-binary", "application/x-executable"},
	".dll":   {"application/vnd.microsoft.portable-executable", "application/x-msdownload", "application/x-executable"},
}

// VerifyArtifact checks that the content of the file matches its
// extension. A file whose body is a bare "Not Found" page (as served for
// dead github release links) is reported through ErrNotFound.
func VerifyArtifact(artifactPath string) error {
	ext := filepath.Ext(artifactPath)
	allowed, ok := expectedMimetypes[ext]
	if !ok {
		return errors.Newf(errors.KindInstallFailure, "unknown artifact suffix %q in %s", ext, artifactPath)
	}
	mtype, err := mimetype.DetectFile(artifactPath)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not detect mimetype of %s", artifactPath)
	}
	for _, want := range allowed {
		if mtype.Is(want) {
			return nil
		}
	}
	if hasNotFoundBody(artifactPath) {
		return errors.Wrapf(ErrNotFound, errors.KindInstallFailure,
			"the downloaded file %s is not a valid artifact, its url pointed to a missing resource", artifactPath)
	}
	return errors.Newf(errors.KindInstallFailure,
		"the downloaded file %s has an incorrect mimetype: expected %s for %s, got %s",
		artifactPath, strings.Join(allowed, " or "), ext, mtype.String())
}

// hasNotFoundBody reports whether the file holds a "Not Found"
// placeholder instead of actual content.
func hasNotFoundBody(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 32)
	n, _ := f.Read(buf)
	return strings.TrimSpace(string(buf[:n])) == "Not Found"
}

// Sha256 computes the hex sha256 digest of a file.
func Sha256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not open %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum checks a file against a hex sha256 digest.
func VerifyChecksum(path, wantHex string) error {
	got, err := Sha256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, wantHex) {
		return errors.Newf(errors.KindInstallFailure,
			"checksum mismatch for %s: expected %s, got %s", path, wantHex, got)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not open %s", src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", filepath.Dir(dst))
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", dst)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not copy %s to %s", src, dst)
	}
	return nil
}
