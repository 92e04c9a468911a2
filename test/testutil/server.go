// Package testutil serves features repositories over HTTP for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/featurectl/internal/logger"
	"github.com/glorpus-work/featurectl/pkg/fsutil"
)

// TestServer serves the files of a directory. With a token set, requests
// without the matching bearer token are rejected.
type TestServer struct {
	*httptest.Server

	Dir      string
	token    string
	requests atomic.Int64
}

// NewTestServer starts a server for dir and stops it when the test ends.
func NewTestServer(t *testing.T, dir, token string) *TestServer {
	t.Helper()
	ts := &TestServer{Dir: dir, token: token}
	files := http.FileServer(http.Dir(dir))
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		if ts.token != "" && r.Header.Get("Authorization") != "Bearer "+ts.token {
			logger.Debugf("Rejecting unauthenticated request for %s", r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// Requests returns the number of requests served so far.
func (ts *TestServer) Requests() int64 {
	return ts.requests.Load()
}

// WriteFile writes content below the served directory and returns its URL.
func (ts *TestServer) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(ts.Dir, filepath.FromSlash(name))
	require.NoError(t, fsutil.EnsureFileDir(path))
	require.NoError(t, os.WriteFile(path, []byte(content), fsutil.FileModeDefault))
	return ts.URL + "/" + name
}
