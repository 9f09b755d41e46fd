package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "anoncal/internal/log"
)

// cacheEntry holds HTTP cache metadata for a single source URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves the source feed with HTTP caching (ETag /
// Last-Modified), a per-attempt timeout, and bounded retries with
// exponential backoff for transient failures.
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	retries   int
	backoff   time.Duration
}

// NewFetcher creates a Fetcher. cacheDir is the base directory for
// per-URL cache subdirectories; retries is the number of additional
// attempts after the first; backoff is doubled after every transient
// failure.
func NewFetcher(cacheDir, userAgent string, timeout time.Duration, retries int, backoff time.Duration) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		cacheDir:  cacheDir,
		userAgent: userAgent,
		retries:   retries,
		backoff:   backoff,
	}
}

// Fetch retrieves the feed body for url. Transient failures (network
// errors, 5xx, 429) are retried; permanent ones (other 4xx) abort
// immediately with a FetchError. When every attempt fails transiently
// and a cached body exists, the cache is returned as a fallback.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &FetchError{Err: errors.New("source URL is empty")}
	}

	cachePath, err := f.cachePathForURL(url)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, &FetchError{Err: err}
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	var lastErr *FetchError
	delay := f.backoff

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Transient: true, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}

		body, ferr := f.attempt(ctx, url, meta, cachedBody)
		if ferr == nil {
			return body, nil
		}
		lastErr = ferr
		if !ferr.Transient {
			return nil, ferr
		}
		appLog.Warn("ics fetch attempt failed",
			"url", redactURL(url), "attempt", attempt+1, "err", ferr)
	}

	if len(cachedBody) > 0 {
		appLog.Warn("ics fetch exhausted retries, using cached body",
			"url", redactURL(url), "err", lastErr)
		return cachedBody, nil
	}
	return nil, lastErr
}

// attempt performs one conditional GET and classifies the outcome.
func (f *Fetcher) attempt(ctx context.Context, url string, meta cacheEntry, cachedBody []byte) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &FetchError{Transient: true, Err: readErr}
		}
		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		cachePath, _ := f.cachePathForURL(url)
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			appLog.Warn("ics cache save failed", "url", redactURL(url), "err", err)
		}
		return body, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, &FetchError{Transient: true, Status: resp.StatusCode,
				Err: errors.New("304 Not Modified but no cached body available")}
		}
		appLog.Info("ics fetch not modified, using cache", "url", redactURL(url))
		return cachedBody, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &FetchError{Transient: true, Status: resp.StatusCode, Err: errors.New(resp.Status)}

	default:
		return nil, &FetchError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
}

func (f *Fetcher) cachePathForURL(url string) (string, error) {
	if url == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(f.cacheDir, dir), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides sensitive parts of a source URL for logging purposes.
// Private feed URLs routinely embed access tokens in the path or query.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}

	return u[:j] + redactedSuffix
}
