package blacklist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSourceURL is the community maintained list of disposable e-mail
// domains the updater fetches when no other source is configured.
const DefaultSourceURL = "https://raw.githubusercontent.com/martenson/disposable-email-domains/master/disposable_email_blocklist.conf"

// DefaultMaxStaleness is how old an on-disk snapshot may grow before a
// non-forced update refetches the list.
const DefaultMaxStaleness = 5 * 24 * time.Hour

const snapshotFileMode = 0o644

// UpdaterOption configures an Updater at construction time.
type UpdaterOption func(*Updater)

// WithSourceURL replaces the list source.
func WithSourceURL(url string) UpdaterOption {
	return func(u *Updater) {
		if url != "" {
			u.sourceURL = url
		}
	}
}

// WithHTTPClient replaces the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) UpdaterOption {
	return func(u *Updater) {
		if client != nil {
			u.client = client
		}
	}
}

// WithSnapshotPath enables on-disk persistence of the fetched list, the ETag
// is kept next to it. An empty path keeps the updater memory-only.
func WithSnapshotPath(path string) UpdaterOption {
	return func(u *Updater) {
		u.snapshotPath = path
	}
}

// WithMaxStaleness sets the snapshot age beyond which a non-forced update
// refetches.
func WithMaxStaleness(d time.Duration) UpdaterOption {
	return func(u *Updater) {
		if d > 0 {
			u.maxStaleness = d
		}
	}
}

// WithOnUpdate registers a callback invoked after every successful refresh,
// with the new list size. Invoked from the updating goroutine.
func WithOnUpdate(fn func(domains int)) UpdaterOption {
	return func(u *Updater) {
		u.onUpdate = fn
	}
}

// WithUpdaterLogger installs the logger.
func WithUpdaterLogger(logger logrus.FieldLogger) UpdaterOption {
	return func(u *Updater) {
		if logger != nil {
			u.logger = logger.WithField("component", "blacklist-updater")
		}
	}
}

// NewUpdater returns an updater feeding store from the configured source.
func NewUpdater(store *Store, options ...UpdaterOption) *Updater {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	u := &Updater{
		store:        store,
		sourceURL:    DefaultSourceURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		maxStaleness: DefaultMaxStaleness,
		logger:       silent.WithField("component", "blacklist-updater"),
	}

	for _, opt := range options {
		opt(u)
	}

	return u
}

// Updater keeps a Store in sync with a remote block list. It fetches
// conditionally with If-None-Match and treats a 304 as a freshness
// confirmation, not a failure. Update and Run may be used concurrently,
// overlapping fetches are serialized.
type Updater struct {
	store        *Store
	sourceURL    string
	client       *http.Client
	snapshotPath string
	maxStaleness time.Duration
	onUpdate     func(domains int)
	logger       logrus.FieldLogger

	mu   sync.Mutex
	etag string
}

// LoadSnapshot populates the store from the on-disk snapshot, when one is
// configured and present. Returns whether the snapshot is fresh enough to
// skip an initial fetch.
func (u *Updater) LoadSnapshot() (fresh bool, err error) {
	if u.snapshotPath == "" {
		return false, nil
	}

	f, err := os.Open(u.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("opening blacklist snapshot: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("inspecting blacklist snapshot: %w", err)
	}

	if _, err := u.store.ReadFrom(f); err != nil {
		return false, fmt.Errorf("reading blacklist snapshot: %w", err)
	}

	if etag, err := os.ReadFile(u.etagPath()); err == nil {
		u.mu.Lock()
		u.etag = string(etag)
		u.mu.Unlock()
	}

	u.logger.WithFields(logrus.Fields{
		"domains": u.store.Len(),
		"age":     time.Since(info.ModTime()).Truncate(time.Second).String(),
	}).Info("Blacklist snapshot loaded")

	return time.Since(info.ModTime()) < u.maxStaleness, nil
}

// Update fetches the list when needed. A non-forced update is a no-op while
// the snapshot is fresh. The store is only swapped on a 200 with a parseable
// body, every other path leaves it untouched.
func (u *Updater) Update(ctx context.Context, force bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !force && u.snapshotFresh() {
		u.logger.Debug("Blacklist snapshot still fresh, skipping fetch")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.sourceURL, nil)
	if err != nil {
		return fmt.Errorf("building blacklist request: %w", err)
	}

	if !force && u.etag != "" {
		req.Header.Set("If-None-Match", u.etag)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching blacklist: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusNotModified:

		// The upstream confirmed our copy, only the snapshot's clock moves
		u.touchSnapshot()
		u.logger.Debug("Blacklist unchanged upstream")
		return nil

	case http.StatusOK:
	default:
		return fmt.Errorf("fetching blacklist: unexpected status %s", resp.Status)
	}

	if _, err := u.store.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("parsing blacklist: %w", err)
	}

	u.etag = resp.Header.Get("ETag")
	u.persistSnapshot()

	u.logger.WithField("domains", u.store.Len()).Info("Blacklist updated")

	if u.onUpdate != nil {
		u.onUpdate(u.store.Len())
	}

	return nil
}

// Run updates in the background on the given interval until ctx is canceled.
// Failures are logged and retried on the next tick.
func (u *Updater) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Update(ctx, false); err != nil {
				u.logger.WithError(err).Error("Scheduled blacklist update failed")
			}
		}
	}
}

func (u *Updater) etagPath() string {
	return u.snapshotPath + ".etag"
}

// snapshotFresh reports whether the on-disk snapshot is recent enough. No
// snapshot configured means never fresh, the list lives in memory only.
func (u *Updater) snapshotFresh() bool {
	if u.snapshotPath == "" {
		return false
	}

	info, err := os.Stat(u.snapshotPath)
	if err != nil {
		return false
	}

	return time.Since(info.ModTime()) < u.maxStaleness
}

func (u *Updater) touchSnapshot() {
	if u.snapshotPath == "" {
		return
	}

	now := time.Now()
	if err := os.Chtimes(u.snapshotPath, now, now); err != nil {
		u.logger.WithError(err).Warn("Couldn't touch the blacklist snapshot")
	}
}

func (u *Updater) persistSnapshot() {
	if u.snapshotPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(u.snapshotPath), 0o755); err != nil {
		u.logger.WithError(err).Warn("Couldn't create the blacklist snapshot directory")
		return
	}

	f, err := os.OpenFile(u.snapshotPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, snapshotFileMode)
	if err != nil {
		u.logger.WithError(err).Warn("Couldn't write the blacklist snapshot")
		return
	}

	_, werr := u.store.WriteTo(f)
	cerr := f.Close()

	if werr != nil || cerr != nil {
		u.logger.WithError(werr).Warn("Couldn't write the blacklist snapshot")
		return
	}

	if u.etag != "" {
		if err := os.WriteFile(u.etagPath(), []byte(u.etag), snapshotFileMode); err != nil {
			u.logger.WithError(err).Warn("Couldn't write the blacklist ETag")
		}
	}
}
