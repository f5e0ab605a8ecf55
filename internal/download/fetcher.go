// Package download fetches extract archives from Geofabrik onto local
// storage, with retries, a progress bar, and an interactive gate before any
// network traffic.
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/geofabrik"
	"github.com/wegman-software/osmtab/internal/logger"
)

var (
	// ErrNetwork wraps transport-level download failures.
	ErrNetwork = errors.New("network error")
	// ErrDeclined is returned when the user refuses the download prompt.
	ErrDeclined = errors.New("download declined")
)

// ConfirmFunc asks the user whether a network fetch may proceed.
type ConfirmFunc func(prompt string) bool

// StdinConfirm prompts on stdout and reads a y/n answer from stdin. Anything
// other than an explicit yes declines.
func StdinConfirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

// AlwaysConfirm skips the interactive gate.
func AlwaysConfirm(string) bool { return true }

// Fetcher downloads extract archives into the data directory.
type Fetcher struct {
	dataDir    string
	client     *http.Client
	confirm    ConfirmFunc
	update     bool
	progress   bool
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithConfirm sets the confirmation gate. The default declines nothing.
func WithConfirm(fn ConfirmFunc) Option {
	return func(f *Fetcher) { f.confirm = fn }
}

// WithUpdate forces a re-download even when the archive is already present.
func WithUpdate(update bool) Option {
	return func(f *Fetcher) { f.update = update }
}

// WithProgress toggles the terminal progress bar.
func WithProgress(show bool) Option {
	return func(f *Fetcher) { f.progress = show }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// NewFetcher creates a fetcher rooted at dataDir.
func NewFetcher(dataDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		dataDir:    dataDir,
		client:     &http.Client{Timeout: 10 * time.Minute},
		confirm:    AlwaysConfirm,
		progress:   true,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LocalPath returns where the subregion's archive lives, whether or not it
// has been downloaded yet.
func (f *Fetcher) LocalPath(sub geofabrik.Subregion, format geofabrik.Format) string {
	return sub.LocalPath(f.dataDir, format)
}

// Ensure makes the subregion's archive available locally, downloading it
// behind the confirmation gate when absent. Returns the local path.
func (f *Fetcher) Ensure(ctx context.Context, sub geofabrik.Subregion, format geofabrik.Format) (string, error) {
	log := logger.Named("download")
	path := f.LocalPath(sub, format)

	if _, err := os.Stat(path); err == nil && !f.update {
		log.Debug("Archive already present", zap.String("path", path))
		return path, nil
	}

	url := sub.DownloadURL(format)
	if !f.confirm(fmt.Sprintf("Download %q for %s?", filepath.Base(path), sub.Name)) {
		return "", fmt.Errorf("%w: %s", ErrDeclined, sub.Name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	log.Info("Downloading extract",
		zap.String("subregion", sub.Name),
		zap.String("url", url))

	if err := f.fetchWithRetry(ctx, url, path); err != nil {
		return "", err
	}
	return path, nil
}

// fetchWithRetry downloads url to path, writing through a temp file so a
// partial download never masquerades as a complete archive.
func (f *Fetcher) fetchWithRetry(ctx context.Context, url, path string) error {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		err := f.fetchOnce(ctx, url, path)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
		logger.Named("download").Warn("Download attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return fmt.Errorf("%w: max retries exceeded: %v", ErrNetwork, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "osmtab/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d", ErrNetwork, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	var bar *pb.ProgressBar
	if f.progress && resp.ContentLength > 0 {
		bar = pb.Start64(resp.ContentLength)
		bar.Set(pb.Bytes, true)
		bar.SetRefreshRate(time.Second)
		body = bar.NewProxyReader(resp.Body)
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	_, err = io.Copy(out, body)
	out.Close()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}
