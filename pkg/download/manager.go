package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/auth"
	pkgerrors "github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
)

// ManagerImpl resolves local locations directly and downloads remote ones over
// HTTP with optional checksum verification and basic de-duplication.
type ManagerImpl struct {
	client    *http.Client
	userAgent string
	cacheDir  string
	auth      auth.Hosts
}

// NewManager creates a new download manager with the given timeout, user agent
// and cache directory for remote content.
func NewManager(timeout time.Duration, userAgent, cacheDir string) *ManagerImpl {
	if userAgent == "" {
		userAgent = "featurectl/1.0"
	}
	return &ManagerImpl{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cacheDir:  cacheDir,
	}
}

// WithAuth sets the per-host credentials applied to remote requests.
func (m *ManagerImpl) WithAuth(hosts auth.Hosts) *ManagerImpl {
	m.auth = hosts
	return m
}

// CacheDir returns the directory remote content is downloaded into.
func (m *ManagerImpl) CacheDir() string {
	return m.cacheDir
}

// Open streams the content behind location.
func (m *ManagerImpl) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, local, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	if local != "" {
		f, err := os.Open(local)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "could not open %s", location)
		}
		return f, nil
	}
	resp, err := m.doRequest(ctx, Item{URL: u})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Localize returns a local path for location, downloading remote content into the cache dir.
func (m *ManagerImpl) Localize(ctx context.Context, location string) (string, error) {
	u, local, err := parseLocation(location)
	if err != nil {
		return "", err
	}
	if local != "" {
		if _, err := os.Stat(local); err != nil {
			return "", pkgerrors.Wrapf(err, "could not access %s", location)
		}
		return local, nil
	}
	return m.Fetch(ctx, Item{ID: location, URL: u}, Options{Dir: m.cacheDir})
}

// LocalizeAll localizes every location; remote ones are fetched concurrently.
func (m *ManagerImpl) LocalizeAll(ctx context.Context, locations []string) (map[string]string, error) {
	out := make(map[string]string, len(locations))
	var remote []Item
	seen := make(map[string]bool)
	for _, location := range locations {
		if seen[location] {
			continue
		}
		seen[location] = true
		u, local, err := parseLocation(location)
		if err != nil {
			return nil, err
		}
		if local != "" {
			out[location] = local
			continue
		}
		remote = append(remote, Item{ID: location, URL: u})
	}
	if len(remote) == 0 {
		return out, nil
	}
	logger.Debug("Fetching remote locations", logger.Fields{"count": len(remote)})
	fetched, err := m.FetchAll(ctx, remote, Options{Dir: m.cacheDir})
	if err != nil {
		return nil, err
	}
	for id, path := range fetched {
		out[id] = path
	}
	return out, nil
}

// LocalPath returns the filesystem path of a local location.
func LocalPath(location string) (string, bool) {
	_, local, err := parseLocation(location)
	if err != nil || local == "" {
		return "", false
	}
	return local, true
}

// parseLocation splits a location into a remote URL or a local path.
func parseLocation(location string) (*url.URL, string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, "", fmt.Errorf("empty location: %w", pkgerrors.ErrInvalidPath)
	}
	u, err := url.Parse(location)
	// single letter schemes are windows drive letters
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return nil, filepath.Clean(location), nil
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Opaque != "" {
			p = u.Opaque
		}
		if p == "" {
			return nil, "", fmt.Errorf("empty file location %s: %w", location, pkgerrors.ErrInvalidPath)
		}
		return nil, filepath.FromSlash(p), nil
	case "http", "https":
		return u, "", nil
	default:
		return nil, "", fmt.Errorf("%s: %w", location, pkgerrors.ErrUnsupportedScheme)
	}
}

// FetchAll downloads multiple items concurrently and returns a map of item IDs to downloaded file paths.
func (m *ManagerImpl) FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(2, runtime.NumCPU()/2)
	}
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return nil, fmt.Errorf("download dir must be absolute: %w: %s", pkgerrors.ErrInvalidPath, opts.Dir)
	}
	if err := os.MkdirAll(opts.Dir, fsutil.DirModeSecure); err != nil {
		return nil, pkgerrors.Wrap(err, "could not create download dir")
	}

	byURL, err := buildURLIndex(items)
	if err != nil {
		return nil, err
	}
	results, err := m.runDownloadWorkers(ctx, items, byURL, opts)
	if err != nil {
		return nil, err
	}
	return mapResultsByID(items, results), nil
}

func buildURLIndex(items []Item) (map[string][]int, error) {
	byURL := make(map[string][]int)
	for i, it := range items {
		if it.URL == nil {
			return nil, fmt.Errorf("item %d has nil URL: %w", i, pkgerrors.ErrDownloadFailed)
		}
		key := it.URL.String()
		byURL[key] = append(byURL[key], i)
	}
	return byURL, nil
}

func mapResultsByID(items []Item, results []string) map[string]string {
	out := make(map[string]string, len(items))
	for i, it := range items {
		out[it.ID] = results[i]
	}
	return out
}

// Fetch downloads a single item and returns the path to the downloaded file.
func (m *ManagerImpl) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return "", fmt.Errorf("download dir must be absolute: %s: %w", opts.Dir, pkgerrors.ErrInvalidPath)
	}
	if err := os.MkdirAll(opts.Dir, fsutil.DirModeSecure); err != nil {
		return "", pkgerrors.Wrap(err, "could not create download dir")
	}
	return m.fetchOne(ctx, item, opts)
}

func (m *ManagerImpl) runDownloadWorkers(ctx context.Context, items []Item, byURL map[string][]int, opts Options) ([]string, error) {
	results := make([]string, len(items))
	var firstErr error
	var mu sync.Mutex

	tasks := make(chan string)
	var wg sync.WaitGroup

	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for urlStr := range tasks {
				idx := byURL[urlStr][0]
				path, err := m.fetchOne(ctx, items[idx], opts)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					for _, i := range byURL[urlStr] {
						results[i] = ""
					}
					mu.Unlock()
					continue
				}
				for _, i := range byURL[urlStr] {
					results[i] = path
				}
				mu.Unlock()
			}
		}()
	}

	for _, urlStr := range rangeKeys(byURL) {
		tasks <- urlStr
	}
	close(tasks)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (m *ManagerImpl) fetchOne(ctx context.Context, item Item, opts Options) (string, error) {
	if item.URL == nil {
		return "", fmt.Errorf("nil URL: %w", pkgerrors.ErrDownloadFailed)
	}
	filename := selectFilename(item)
	absPath := filepath.Join(opts.Dir, filename)
	if reuse, ok := tryReuseExisting(absPath, item.Checksum); ok {
		return reuse, nil
	}
	resp, err := m.doRequest(ctx, item)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	tmpPath, err := writeBodyToTemp(resp, absPath)
	if err != nil {
		return "", err
	}
	if item.Checksum != "" {
		ok, err := verifySHA256(tmpPath, item.Checksum)
		if err != nil {
			return "", err
		}
		if !ok {
			_ = os.Remove(tmpPath)
			return "", fmt.Errorf("checksum mismatch for %s: %w", item.URL, pkgerrors.ErrFileHashMismatch)
		}
	}
	if err := finalizeFile(tmpPath, absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func selectFilename(item Item) string {
	if item.Filename != "" {
		return item.Filename
	}
	if item.Checksum != "" {
		return item.Checksum
	}
	h := sha256.Sum256([]byte(item.URL.String()))
	// keep the extension so archive formats stay identifiable
	return hex.EncodeToString(h[:]) + path.Ext(item.URL.Path)
}

func tryReuseExisting(absPath, checksum string) (string, bool) {
	if st, err := os.Stat(absPath); err == nil && st.Size() > 0 {
		if checksum == "" {
			return absPath, true
		}
		ok, err := verifySHA256(absPath, checksum)
		if err == nil && ok {
			return absPath, true
		}
	}
	return "", false
}

func (m *ManagerImpl) doRequest(ctx context.Context, item Item) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL.String(), http.NoBody)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", m.userAgent)
	if err := m.auth.Apply(req); err != nil {
		return nil, pkgerrors.Wrapf(err, "could not authenticate request for %s", item.URL.Host)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "download failed")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d for %s: %w", resp.StatusCode, item.URL, pkgerrors.ErrDownloadFailed)
	}
	return resp, nil
}

func writeBodyToTemp(resp *http.Response, absPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeSecure); err != nil {
		return "", pkgerrors.Wrap(err, "could not create download dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(absPath), "dl-*.tmp")
	if err != nil {
		return "", pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", pkgerrors.Wrap(err, "could not write file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", pkgerrors.Wrap(err, "could not sync file")
	}
	if err := tmp.Close(); err != nil {
		return "", pkgerrors.Wrap(err, "could not close file")
	}
	return tmpPath, nil
}

func finalizeFile(tmpPath, absPath string) error {
	if err := os.Rename(tmpPath, absPath); err != nil {
		_ = os.Remove(tmpPath)
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(absPath, fsutil.FileModeSecure); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	return nil
}

func verifySHA256(path string, wantHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, pkgerrors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, pkgerrors.Wrap(err, "hashing")
	}
	got := hex.EncodeToString(h.Sum(nil))
	return got == normalizeHex(wantHex), nil
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func rangeKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
