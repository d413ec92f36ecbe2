package core

// media.go downloads row-attached images and hands them to an ImageStore.
//
// Each URL is fetched independently with a bounded number in flight per row.
// A failed image is counted and logged, never propagated: the row it belongs
// to still succeeds.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Media fetch defaults.
const (
	DefaultImageTimeout     = 20 * time.Second
	DefaultMaxImageSize     = 10 * 1024 * 1024
	DefaultImageConcurrency = 4
)

// ImageStore persists image bytes and returns where they can be found.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// ImageRepository links stored images to company records.
type ImageRepository interface {
	AttachImage(ctx context.Context, companyID, sourceURL, location string, position int) error
}

// MediaResult counts the outcome of fetching one row's images.
type MediaResult struct {
	Downloaded int
	Failed     int
}

// MediaConfig tunes the fetcher. Zero values fall back to defaults.
type MediaConfig struct {
	Timeout     time.Duration
	MaxSize     int64
	Concurrency int
	UserAgent   string
}

// MediaFetcher downloads images over HTTP and stores them.
type MediaFetcher struct {
	client *http.Client
	store  ImageStore
	repo   ImageRepository
	cfg    MediaConfig
}

// NewMediaFetcher creates a fetcher. client may be nil.
func NewMediaFetcher(client *http.Client, store ImageStore, repo ImageRepository, cfg MediaConfig) *MediaFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImageTimeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxImageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultImageConcurrency
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &MediaFetcher{
		client: client,
		store:  store,
		repo:   repo,
		cfg:    cfg,
	}
}

// Fetch downloads every URL for companyID. It never returns an error; each
// failure is reflected in MediaResult.Failed.
func (f *MediaFetcher) Fetch(ctx context.Context, companyID string, urls []string) MediaResult {
	var downloaded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	for i, raw := range urls {
		i, raw := i, raw
		g.Go(func() error {
			if err := f.fetchOne(gctx, companyID, raw, i); err != nil {
				failed.Add(1)
				slog.Debug("image fetch failed",
					"company_id", companyID,
					"url", raw,
					"error", err,
				)
				return nil
			}
			downloaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return MediaResult{
		Downloaded: int(downloaded.Load()),
		Failed:     int(failed.Load()),
	}
}

func (f *MediaFetcher) fetchOne(ctx context.Context, companyID, raw string, position int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	u, err := validateImageURL(raw)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.cfg.MaxSize {
		return fmt.Errorf("download: image exceeds %d bytes", f.cfg.MaxSize)
	}

	contentType := imageContentType(resp.Header.Get("Content-Type"), u.Path)
	if contentType == "" {
		return fmt.Errorf("download: not an image (%q)", resp.Header.Get("Content-Type"))
	}

	body := &limitedReader{r: resp.Body, remaining: f.cfg.MaxSize}
	key := imageKey(companyID, u, contentType)

	location, err := f.store.Put(reqCtx, key, body, contentType)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if f.repo != nil {
		if err := f.repo.AttachImage(ctx, companyID, raw, location, position); err != nil {
			return fmt.Errorf("attach: %w", err)
		}
	}
	return nil
}

func validateImageURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("empty image URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported image URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("image URL has no host")
	}
	return u, nil
}

// imageContentType returns the image MIME type from the response header,
// falling back to the URL extension when the server sends a generic type.
func imageContentType(header, urlPath string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if header != "" && err == nil && mediaType != "application/octet-stream" {
		return ""
	}
	byExt := mime.TypeByExtension(strings.ToLower(path.Ext(urlPath)))
	if strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return ""
}

func imageKey(companyID string, u *url.URL, contentType string) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("companies/%s/%s%s", companyID, uuid.New().String(), ext)
}

// errImageTooLarge is returned by limitedReader once the size cap is crossed.
var errImageTooLarge = errors.New("image exceeds size limit")

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errImageTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errImageTooLarge
	}
	return n, err
}
