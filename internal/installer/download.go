// SPDX-License-Identifier: MPL-2.0

package installer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/moby/go-archive"
)

const (
	defaultUserAgent = "cibuildwheel"

	downloadsDir  = "downloads"
	toolchainsDir = "toolchains"
)

// ErrDownload is the sentinel error wrapped by DownloadError.
var ErrDownload = errors.New("download failed")

type (
	// Downloader fetches files over HTTP into a cache directory. A file
	// already in the cache is never downloaded again.
	Downloader struct {
		httpClient *http.Client
		userAgent  string
		cacheDir   string
	}

	// DownloaderOption configures a Downloader during construction.
	DownloaderOption func(*Downloader)

	// DownloadError reports a failed download.
	DownloadError struct {
		URL        string
		StatusCode int
		Err        error
	}
)

// Error implements the error interface.
func (e *DownloadError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("downloading %s: %v", redactURL(e.URL), e.Err)
	default:
		return fmt.Sprintf("downloading %s: unexpected status %d", redactURL(e.URL), e.StatusCode)
	}
}

// Unwrap returns ErrDownload and the underlying cause.
func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownload}
	}
	return []error{ErrDownload, e.Err}
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		d.userAgent = ua
	}
}

// WithCacheDir overrides the cache directory.
func WithCacheDir(dir string) DownloaderOption {
	return func(d *Downloader) {
		d.cacheDir = dir
	}
}

// NewDownloader creates a Downloader caching under $XDG_CACHE_HOME/cibuildwheel.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
		cacheDir:   filepath.Join(xdg.CacheHome, "cibuildwheel"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CacheDir returns the root of the cache.
func (d *Downloader) CacheDir() string { return d.cacheDir }

// Fetch returns the cached copy of rawURL, downloading it first when it is
// not cached yet. Files are cached by the last element of the URL path.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	name, err := fileName(rawURL)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	dir := filepath.Join(d.cacheDir, downloadsDir)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := d.downloadToTempFile(ctx, rawURL, dir)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("moving download into cache: %w", err)
	}
	return dest, nil
}

// Extract downloads the archive at rawURL and unpacks it once into the
// toolchain cache. It returns the directory the archive's top-level
// directory was unpacked to, named after the archive without its extension.
func (d *Downloader) Extract(ctx context.Context, rawURL string) (string, error) {
	name, err := fileName(rawURL)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	base, kind := splitArchiveName(name)
	if kind == "" {
		return "", fmt.Errorf("unsupported archive type: %s", name)
	}

	root := filepath.Join(d.cacheDir, toolchainsDir)
	dest := filepath.Join(root, base)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	archivePath, err := d.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	staging, err := os.MkdirTemp(root, ".extract-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if kind == ".zip" {
		err = extractZip(archivePath, staging)
	} else {
		err = extractTar(archivePath, staging)
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", name, err)
	}

	if err := os.Rename(filepath.Join(staging, base), dest); err != nil {
		return "", fmt.Errorf("extracting %s: archive has no top-level %s directory: %w", name, base, err)
	}
	return dest, nil
}

func (d *Downloader) downloadToTempFile(ctx context.Context, rawURL, dir string) (_ string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode != http.StatusOK {
		return "", &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	return tmp.Name(), nil
}

func extractTar(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	// Untar detects the compression itself.
	return archive.Untar(f, dest, &archive.TarOptions{NoLchown: true})
}

func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(filepath.Separator)) {
			return fmt.Errorf("zip entry %q escapes the destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipFile(f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(dst, src)
	return err
}

// splitArchiveName returns the archive name without its extension and the
// extension, or "" for the extension when the type is not supported.
func splitArchiveName(name string) (base, ext string) {
	for _, e := range []string{".tar.bz2", ".tar.gz", ".tgz", ".tar.xz", ".zip"} {
		if b, ok := strings.CutSuffix(name, e); ok {
			return b, e
		}
	}
	return name, ""
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("URL %s has no file name", redactURL(rawURL))
	}
	return name, nil
}

// redactURL strips query parameters, which may carry credentials, from a URL
// before it is logged.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
