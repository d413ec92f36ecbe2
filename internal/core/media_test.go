package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-body")

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/generic.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/big.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	})
	mux.HandleFunc("/ua.jpg", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "importer-test" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMediaFetcher_MixedResults(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	repo := &fakeImageRepo{}
	f := NewMediaFetcher(srv.Client(), store, repo, MediaConfig{})

	res := f.Fetch(context.Background(), "company-1", []string{
		srv.URL + "/ok.jpg",
		srv.URL + "/missing.jpg",
	})

	assert.Equal(t, MediaResult{Downloaded: 1, Failed: 1}, res)
	require.Len(t, store.objects, 1)
	for key, data := range store.objects {
		assert.True(t, strings.HasPrefix(key, "companies/company-1/"), key)
		assert.True(t, strings.HasSuffix(key, ".jpg"), key)
		assert.Equal(t, pngBytes, data)
		assert.Equal(t, "image/jpeg", store.types[key])
	}

	require.Len(t, repo.attachments, 1)
	a := repo.attachments[0]
	assert.Equal(t, "company-1", a.companyID)
	assert.Equal(t, srv.URL+"/ok.jpg", a.sourceURL)
	assert.True(t, strings.HasPrefix(a.location, "mem://"))
	assert.Equal(t, 0, a.position)
}

func TestMediaFetcher_Rejections(t *testing.T) {
	srv := imageServer(t)

	tests := []struct {
		name string
		url  string
	}{
		{"unsupported scheme", "ftp://example.com/a.jpg"},
		{"no host", "http:///a.jpg"},
		{"empty", ""},
		{"html page", srv.URL + "/page"},
		{"over size cap", srv.URL + "/big.jpg"},
		{"server error", srv.URL + "/missing.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			f := NewMediaFetcher(srv.Client(), store, nil, MediaConfig{MaxSize: 1024})

			res := f.Fetch(context.Background(), "c", []string{tt.url})
			assert.Equal(t, MediaResult{Failed: 1}, res)
			assert.Empty(t, store.objects)
		})
	}
}

func TestMediaFetcher_GenericTypeFallsBackToExtension(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	f := NewMediaFetcher(srv.Client(), store, nil, MediaConfig{})

	res := f.Fetch(context.Background(), "c", []string{srv.URL + "/generic.png"})
	assert.Equal(t, 1, res.Downloaded)
	for key := range store.objects {
		assert.Equal(t, "image/png", store.types[key])
	}
}

func TestMediaFetcher_SendsUserAgent(t *testing.T) {
	srv := imageServer(t)
	f := NewMediaFetcher(srv.Client(), newMemStore(), nil, MediaConfig{UserAgent: "importer-test"})

	res := f.Fetch(context.Background(), "c", []string{srv.URL + "/ua.jpg"})
	assert.Equal(t, 1, res.Downloaded)
}

func TestMediaFetcher_ManyURLs(t *testing.T) {
	srv := imageServer(t)
	store := newMemStore()
	repo := &fakeImageRepo{}
	f := NewMediaFetcher(srv.Client(), store, repo, MediaConfig{Concurrency: 2})

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = srv.URL + "/ok.jpg?n=" + string(rune('a'+i))
	}
	res := f.Fetch(context.Background(), "c", urls)

	assert.Equal(t, 6, res.Downloaded)
	assert.Len(t, store.objects, 6)

	positions := make(map[int]bool)
	for _, a := range repo.attachments {
		positions[a.position] = true
	}
	assert.Len(t, positions, 6)
}

func TestImageContentType(t *testing.T) {
	tests := []struct {
		header, path, want string
	}{
		{"image/png", "/a", "image/png"},
		{"image/jpeg; charset=binary", "/a", "image/jpeg"},
		{"application/octet-stream", "/a.png", "image/png"},
		{"", "/a.gif", "image/gif"},
		{"text/html", "/a.png", ""},
		{"application/octet-stream", "/a.txt", ""},
		{"", "/a", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, imageContentType(tt.header, tt.path), "%q %q", tt.header, tt.path)
	}
}
