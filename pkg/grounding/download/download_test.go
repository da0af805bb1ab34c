package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(t *testing.T) *Fetcher {
	f := New(filepath.Join(t.TempDir(), "input"))
	f.InitialInterval = time.Millisecond
	f.MaxRetries = 3
	return f
}

func TestFetchWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<uniprot/>"))
	}))
	defer srv.Close()

	f := testFetcher(t)
	path, err := f.Fetch(context.Background(), srv.URL, "uniprot.xml", false)
	require.NoError(t, err)
	assert.Equal(t, f.Path("uniprot.xml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<uniprot/>", string(data))

	leftovers, err := filepath.Glob(filepath.Join(f.Dir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetchReusesCachedFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	f := testFetcher(t)
	require.NoError(t, os.MkdirAll(f.Dir, 0o755))
	require.NoError(t, os.WriteFile(f.Path("u.xml"), []byte("cached"), 0o644))

	path, err := f.Fetch(context.Background(), srv.URL, "u.xml", false)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "cached", string(data))
	assert.EqualValues(t, 0, hits.Load())

	path, err = f.Fetch(context.Background(), srv.URL, "u.xml", true)
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Equal(t, "fresh", string(data))
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL, "u.xml", false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchPermanentFailureReportsPageTitle(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html><head><title>
			Release not
			found</title></head><body>gone</body></html>`))
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL, "u.xml", false)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "Release not found", se.Detail)
	assert.EqualValues(t, 1, hits.Load(), "4xx responses are not retried")

	_, statErr := os.Stat(f.Path("u.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "still down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL, "u.xml", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
	assert.EqualValues(t, 4, hits.Load())
}

func TestHTMLTitle(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"simple", "<title>Maintenance</title>", "Maintenance"},
		{"nested", "<html><head><meta charset=utf-8><title>503 Service Unavailable</title></head></html>", "503 Service Unavailable"},
		{"missing", "<html><body>nothing</body></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlTitle(strings.NewReader(tt.page)))
		})
	}
}
