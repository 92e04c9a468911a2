package download

import (
	"context"
	"io"
	"net/url"
)

// Manager resolves module, repository and configuration locations to content.
// Locations are file: URLs, plain filesystem paths or http(s) URLs.
type Manager interface {
	// Open streams the content behind location. The caller closes the reader.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// Localize returns a local filesystem path holding the content of location.
	// Local locations are returned as is, remote ones are downloaded into the cache.
	Localize(ctx context.Context, location string) (string, error)

	// LocalizeAll localizes several locations, downloading remote ones concurrently.
	// It returns a map from location to local path.
	LocalizeAll(ctx context.Context, locations []string) (map[string]string, error)

	// FetchAll downloads all items, respecting Options (e.g., concurrency and cache dir).
	// It returns a map from Item.ID to absolute local file path.
	FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error)

	// Fetch downloads a single item to a deterministic location (within opts.Dir).
	// It returns the absolute local file path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// Item represents one remote resource to download.
type Item struct {
	ID       string   // stable identifier (e.g., module location). Must be unique within a batch.
	URL      *url.URL // source URL to download
	Checksum string   // optional hex-encoded SHA-256 checksum; if provided, will be verified
	Filename string   // optional preferred filename; if empty, a name will be derived
}

// Options control the behavior of the download manager.
type Options struct {
	Dir         string // destination directory (cache). Must be absolute.
	Concurrency int    // number of parallel downloads; if <=0, a sane default is used
}
