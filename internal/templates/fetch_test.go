package templates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteDoc = `
templates:
  - id: bs-junkanoo
    country_code: BS
    title: Boxing Day Junkanoo
    category: cultural
    tags: [festival]
    fixed_date: "12-26"
`

func testClient() *resty.Client {
	return resty.New().SetRetryCount(0).SetTimeout(5 * time.Second)
}

func TestURLSource_ConditionalFetchAndFallback(t *testing.T) {
	var (
		status   atomic.Int32
		requests atomic.Int32
		lastINM  atomic.Value
	)
	status.Store(http.StatusOK)
	lastINM.Store("")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		lastINM.Store(r.Header.Get("If-None-Match"))
		switch int(status.Load()) {
		case http.StatusOK:
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write([]byte(remoteDoc))
		case http.StatusNotModified:
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(int(status.Load()))
		}
	}))
	defer srv.Close()

	src := NewURLSource(srv.URL+"/events.yaml?token=secret", t.TempDir()).WithClient(testClient())
	assert.NotContains(t, src.Name(), "secret")

	ctx := context.Background()

	body, cached, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, remoteDoc, string(body))

	status.Store(http.StatusNotModified)
	body, cached, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, `"v1"`, lastINM.Load())
	assert.Equal(t, remoteDoc, string(body))

	status.Store(http.StatusInternalServerError)
	res, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "bs-junkanoo", res.Templates[0].ID)

	assert.Equal(t, int32(3), requests.Load())
}

func TestURLSource_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewURLSource(srv.URL, t.TempDir()).WithClient(testClient())
	_, _, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestURLSource_EmptyURL(t *testing.T) {
	_, err := NewURLSource("", t.TempDir()).Load(context.Background())
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.org/...(redacted)", redactURL("https://example.org/a/b?key=1"))
	assert.Equal(t, "https://example.org/...(redacted)", redactURL("https://example.org"))
	assert.Equal(t, "...(redacted)", redactURL("not a url"))
}
