// Package httpcache is a `http.RoundTripper` that stores successful GET
// responses on disk and replays them on later requests for the same URL.
// it's a development aid: harvesting against a warm cache makes no API calls.
package httpcache

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
)

type Transport struct {
	// directory cached responses are written to.
	Dir string
	// performs requests on a cache miss. defaults to `http.DefaultTransport`.
	Next http.RoundTripper
	// decides if a request may be served from or written to the cache.
	// defaults to all GET requests.
	Cacheable func(*http.Request) bool
}

func New(dir string, next http.RoundTripper) (*Transport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create http cache dir: %w", err)
	}
	return &Transport{Dir: dir, Next: next}, nil
}

// creates a key that is unique to the given `http.Request` URL (including query parameters),
// hashed to an MD5 string.
// the result can be safely used as a filename.
func MakeCacheKey(r *http.Request) string {
	// inconsistent case and url params etc will cause cache misses
	key := r.URL.String()
	md5sum := md5.Sum([]byte(key))
	return hex.EncodeToString(md5sum[:])
}

// returns a path like "/home/user/.cache/sdk-build-catalogue/http/711f20df1f76da140218e51445a6fc47"
func (t *Transport) CachePath(cache_key string) string {
	return filepath.Join(t.Dir, cache_key)
}

// reads the cached response as if it were the result of `httputil.DumpResponse`,
// a status code, followed by a series of headers, followed by the response body.
func (t *Transport) ReadCacheEntry(cache_key string, req *http.Request) (*http.Response, error) {
	fh, err := os.Open(t.CachePath(cache_key))
	if err != nil {
		return nil, err
	}
	// the body is read lazily, the file is closed with it.
	resp, err := http.ReadResponse(bufio.NewReader(fh), req)
	if err != nil {
		fh.Close()
		return nil, err
	}
	resp.Body = &file_body{ReadCloser: resp.Body, fh: fh}
	return resp, nil
}

type file_body struct {
	io.ReadCloser
	fh *os.File
}

func (b *file_body) Close() error {
	err := b.ReadCloser.Close()
	if fh_err := b.fh.Close(); err == nil {
		err = fh_err
	}
	return err
}

func (t *Transport) next() http.RoundTripper {
	if t.Next == nil {
		return http.DefaultTransport
	}
	return t.Next
}

func (t *Transport) cacheable(req *http.Request) bool {
	if t.Cacheable != nil {
		return t.Cacheable(req)
	}
	return req.Method == http.MethodGet
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.cacheable(req) {
		return t.next().RoundTrip(req)
	}

	cache_key := MakeCacheKey(req)
	cache_path := t.CachePath(cache_key)
	cached_resp, err := t.ReadCacheEntry(cache_key, req)
	if err == nil {
		slog.Debug("cache HIT", "url", req.URL, "cache-path", cache_path)
		return cached_resp, nil
	}
	slog.Debug("cache MISS", "url", req.URL, "cache-path", cache_path, "error", err)

	resp, err := t.next().RoundTrip(req)
	if err != nil {
		// do not cache error response, pass through
		return resp, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Debug("non-200 response, pass through", "code", resp.StatusCode)
		return resp, nil
	}

	dumped_bytes, err := httputil.DumpResponse(resp, true)
	if err != nil {
		slog.Warn("failed to dump response to bytes", "error", err)
		return resp, nil
	}

	// written to a temporary file first so a partial entry is never replayed.
	fh, err := os.CreateTemp(t.Dir, cache_key+".*.tmp")
	if err != nil {
		slog.Warn("failed to open cache file for writing", "error", err)
		return resp, nil
	}
	_, err = fh.Write(dumped_bytes)
	close_err := fh.Close()
	if err != nil || close_err != nil {
		slog.Warn("failed to write all bytes in response to cache file", "error", err, "close-error", close_err)
		os.Remove(fh.Name())
		return resp, nil
	}
	if err := os.Rename(fh.Name(), cache_path); err != nil {
		slog.Warn("failed to move cache file into place", "error", err)
		os.Remove(fh.Name())
		return resp, nil
	}

	cached_resp, err = t.ReadCacheEntry(cache_key, req)
	if err != nil {
		slog.Warn("failed to read cache file", "error", err)
		return resp, nil
	}
	resp.Body.Close()
	return cached_resp, nil
}
