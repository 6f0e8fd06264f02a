package templates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	appLog "almanac/internal/log"
)

// cacheMeta holds HTTP validators for the cached copy of a URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// URLSource downloads a template document over HTTP(S) with conditional
// requests (ETag / Last-Modified) and a disk cache. When the server is
// unreachable or errors, the last cached body is used.
type URLSource struct {
	url      string
	cacheDir string
	client   *resty.Client
}

// NewURLSource creates a URLSource caching under cacheDir.
func NewURLSource(url, cacheDir string) *URLSource {
	if cacheDir == "" {
		cacheDir = "./var/template-cache"
	}
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Accept", "application/yaml, application/json;q=0.9, */*;q=0.1")
	return &URLSource{url: url, cacheDir: cacheDir, client: client}
}

// WithClient replaces the HTTP client, mainly for tests.
func (s *URLSource) WithClient(c *resty.Client) *URLSource {
	s.client = c
	return s
}

func (s *URLSource) Name() string { return "url:" + redactURL(s.url) }

func (s *URLSource) Load(ctx context.Context) (LoadResult, error) {
	body, _, err := s.Fetch(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	return Parse(body)
}

// Fetch returns the document body and whether it came from the cache.
func (s *URLSource) Fetch(ctx context.Context) ([]byte, bool, error) {
	if s.url == "" {
		return nil, false, errors.New("template URL is empty")
	}

	dir := s.cachePath()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("create template cache: %w", err)
	}

	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body"))

	req := s.client.R().SetContext(ctx)
	if meta.ETag != "" {
		req.SetHeader("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.SetHeader("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("template fetch start", "url", redactURL(s.url))

	resp, err := req.Get(s.url)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("template fetch network error, using cached body", err, "url", redactURL(s.url))
			return cached, true, nil
		}
		return nil, false, fmt.Errorf("fetch templates: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		body := resp.Body()
		newMeta := cacheMeta{
			URL:          s.url,
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
		}
		if err := saveCache(dir, newMeta, body); err != nil {
			appLog.Error("template cache save failed", err, "url", redactURL(s.url))
		}
		appLog.Info("template fetch success", "url", redactURL(s.url), "bytes", len(body))
		return body, false, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("template fetch not modified; using cache", "url", redactURL(s.url))
		return cached, true, nil

	default:
		if len(cached) > 0 {
			appLog.Error("template fetch non-OK, using cached body", errors.New(resp.Status()), "url", redactURL(s.url), "status", resp.StatusCode())
			return cached, true, nil
		}
		return nil, false, fmt.Errorf("fetch templates: %s", resp.Status())
	}
}

func (s *URLSource) cachePath() string {
	sum := sha256.Sum256([]byte(s.url))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; data URLs may embed tokens.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i == -1 {
		return "...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
