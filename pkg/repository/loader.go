// Package repository loads feature repositories and keeps the registry of
// known repositories together with the merged feature catalog.
package repository

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/download"
	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/model"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// Loader reads the repository behind a URI.
type Loader interface {
	Load(ctx context.Context, uri string) (*model.Repository, error)
}

// YAMLLoader reads YAML repository descriptors through a download manager.
//
//	name: web-features
//	repositories: [../base/features.yaml]
//	features:
//	  - name: web
//	    version: 1.0.0
//	    bundles: [file:/modules/http.jar]
type YAMLLoader struct {
	downloader download.Manager
	blacklist  []blacklistEntry
}

type blacklistEntry struct {
	name string
	rng  version.Range
}

// NewYAMLLoader creates a loader. Blacklist entries are "name" or
// "name/version-or-range"; matching features are dropped at load time.
func NewYAMLLoader(downloader download.Manager, blacklist []string) *YAMLLoader {
	l := &YAMLLoader{downloader: downloader}
	for _, entry := range blacklist {
		name, ver, _ := strings.Cut(strings.TrimSpace(entry), "/")
		if name == "" {
			continue
		}
		rng, err := version.ParseRange(ver)
		if err != nil {
			logger.Warn("Ignoring invalid blacklist entry", logger.Fields{"entry": entry, "error": err.Error()})
			continue
		}
		if ver != "" && !strings.ContainsAny(ver, "[(") {
			if v, err := version.ParseLoose(ver); err == nil {
				rng = version.Exactly(v)
			}
		}
		l.blacklist = append(l.blacklist, blacklistEntry{name: name, rng: rng})
	}
	return l
}

// Load fetches and decodes the repository at uri.
func (l *YAMLLoader) Load(ctx context.Context, uri string) (*model.Repository, error) {
	rc, err := l.downloader.Open(ctx, uri)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load features repository %s", uri)
	}
	defer func() { _ = rc.Close() }()

	repo := &model.Repository{}
	if err := yaml.NewDecoder(rc).Decode(repo); err != nil {
		return nil, fmt.Errorf("unable to parse features repository %s: %v: %w", uri, err, errors.ErrInvalidRepository)
	}
	repo.URI = uri
	if repo.Name == "" {
		logger.Warn("Feature repository doesn't have a name", logger.Fields{"uri": uri})
	}

	features := repo.Features[:0]
	for _, f := range repo.Features {
		if f == nil || strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("feature without name in %s: %w", uri, errors.ErrInvalidRepository)
		}
		if f.Version == "" {
			f.Version = model.DefaultVersion
		}
		if l.blacklisted(f) {
			logger.Debug("Dropping blacklisted feature", logger.Fields{"feature": f.String(), "uri": uri})
			continue
		}
		features = append(features, f)
	}
	repo.Features = features

	for i, dep := range repo.Repositories {
		repo.Repositories[i] = ResolveReference(uri, dep)
	}
	return repo, nil
}

func (l *YAMLLoader) blacklisted(f *model.Feature) bool {
	for _, entry := range l.blacklist {
		if entry.name != f.Name {
			continue
		}
		v, err := version.ParseLoose(f.Version)
		if err != nil || entry.rng.Contains(v) {
			return true
		}
	}
	return false
}

// ResolveReference resolves a repository reference relative to the URI of
// the repository declaring it. Absolute references are returned unchanged.
func ResolveReference(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return ref
	}
	if filepath.IsAbs(ref) || strings.HasPrefix(ref, "/") {
		return ref
	}

	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" || len(b.Scheme) == 1 {
		return filepath.Join(filepath.Dir(base), ref)
	}
	if b.Opaque != "" {
		// file:relative/dir/features.yaml
		return b.Scheme + ":" + path.Join(path.Dir(b.Opaque), ref)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
