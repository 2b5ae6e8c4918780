package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	TempSuffixInstall = ".tmp"
	TempSuffixUpdate  = ".tmp_update"

	DefaultMode os.FileMode = 0o755
)

var (
	ErrEmptyArtifact    = errors.New("downloaded artifact is empty")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

type ChecksumError struct {
	Path     string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s (expected %s, got %s)", e.Path, e.Expected, e.Got)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

type Result struct {
	Path   string
	Size   int64
	SHA256 string
}

type options struct {
	suffix   string
	mode     os.FileMode
	checksum string
}

type Option func(*options)

func WithTempSuffix(suffix string) Option {
	return func(o *options) {
		o.suffix = suffix
	}
}

func WithMode(mode os.FileMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithChecksum makes the download fail unless the content hashes to the given
// hex encoded SHA-256. An empty checksum disables the check.
func WithChecksum(checksum string) Option {
	return func(o *options) {
		o.checksum = strings.ToLower(checksum)
	}
}

func newOptions(opts []Option) *options {
	o := &options{suffix: TempSuffixInstall, mode: DefaultMode}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type Downloader struct {
	fs      afero.Fs
	fetcher fetch.Fetcher
	log     *logrus.Logger
}

func New(fs afero.Fs, fetcher fetch.Fetcher, log *logrus.Logger) *Downloader {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Downloader{fs: fs, fetcher: fetcher, log: log}
}

func TempPath(target, suffix string) string {
	return target + suffix
}

// Download fetches url into target. The content is staged next to target and
// renamed over it only after it has been fully received and verified, so
// target is either left untouched or completely replaced.
func (d *Downloader) Download(ctx context.Context, url, target string, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	tmp := TempPath(target, o.suffix)
	if err := d.prepare(target, tmp); err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	d.log.Debugf("downloading %s to %s", url, tmp)
	resp, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	res, err := d.stage(tmp, resp.Body, resp.ContentLength, o)
	if err != nil {
		var checksumErr *ChecksumError
		if errors.Is(err, ErrEmptyArtifact) || errors.As(err, &checksumErr) {
			return nil, fmt.Errorf("%s: %w", url, err)
		}
		return nil, &DownloadError{URL: url, Err: err}
	}
	if err := d.promote(tmp, target); err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}
	res.Path = target
	return res, nil
}

// Place stages the content of r and promotes it onto target the same way
// Download does.
func (d *Downloader) Place(target string, r io.Reader, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	tmp := TempPath(target, o.suffix)
	if err := d.prepare(target, tmp); err != nil {
		return nil, err
	}
	res, err := d.stage(tmp, r, -1, o)
	if err != nil {
		return nil, err
	}
	if err := d.promote(tmp, target); err != nil {
		return nil, err
	}
	res.Path = target
	return res, nil
}

// WriteFile atomically replaces path with data.
func WriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	_, err := New(fs, nil, nil).Place(path, bytes.NewReader(data), WithMode(perm))
	return err
}

func (d *Downloader) prepare(target, tmp string) error {
	if err := d.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	// a previous run may have been killed mid-transfer
	if _, err := d.fs.Stat(tmp); err == nil {
		d.log.Debugf("removing stale temporary file %s", tmp)
		if err := d.fs.Remove(tmp); err != nil {
			return fmt.Errorf("failed to remove stale temporary file: %w", err)
		}
	}
	return nil
}

func (d *Downloader) stage(tmp string, r io.Reader, expectedLength int64, o *options) (_ *Result, err error) {
	f, err := d.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = d.fs.Remove(tmp)
		}
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hash), r)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}
	if expectedLength >= 0 && n != expectedLength {
		return nil, fmt.Errorf("unexpected content length: %d (should be %d)", n, expectedLength)
	}

	info, err := d.fs.Stat(tmp)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, ErrEmptyArtifact
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if o.checksum != "" && sum != o.checksum {
		return nil, &ChecksumError{Path: tmp, Expected: o.checksum, Got: sum}
	}
	if err := d.fs.Chmod(tmp, o.mode); err != nil {
		return nil, fmt.Errorf("failed to set permissions: %w", err)
	}
	return &Result{Size: info.Size(), SHA256: sum}, nil
}

func (d *Downloader) promote(tmp, target string) error {
	if err := d.fs.Rename(tmp, target); err != nil {
		_ = d.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	d.log.Debugf("promoted %s to %s", tmp, target)
	return nil
}
