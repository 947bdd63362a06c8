package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/wikicache/internal/cache"
	"github.com/leonardcser/wikicache/internal/fetch"
	"github.com/leonardcser/wikicache/internal/store"
)

var longText = strings.Repeat("Go is a statically typed, compiled programming language. ", 3)

func articleHTML() string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Go (programming language) - Wikipedia</title></head>
<body>
<h1 class="firstHeading">Go (programming language)</h1>
<div id="mw-content-text">
  <p>Too short.</p>
  <p>%s</p>
  <script>var tracking = 1;</script>
  <p>%s<sup class="reference">[1]</sup></p>
</div>
<div id="mw-normal-catlinks">
  <a href="/wiki/Special:Categories">Categories</a>:
  <ul>
    <li><a href="/wiki/Category:Programming_languages">Programming languages</a></li>
    <li><a href="/wiki/Category:Google_software">Google software</a></li>
    <li><a href="/wiki/Category:A">A</a></li>
    <li><a href="/wiki/Category:B">B</a></li>
    <li><a href="/wiki/Category:C">C</a></li>
    <li><a href="/wiki/Category:D">D</a></li>
  </ul>
</div>
</body></html>`, longText, longText)
}

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Go", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML())
	})
	mux.HandleFunc("/wiki/Plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>hello</p></body></html>")
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/wiki/Slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchArticle_Parses(t *testing.T) {
	srv := newTestServer(t, nil)
	f := NewFetcher(Options{})

	a, err := f.FetchArticle(context.Background(), srv.URL+"/wiki/Go")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/wiki/Go", a.URL)
	assert.Equal(t, "Go (programming language)", a.Title)
	paragraphs := strings.Split(a.Content, "\n\n")
	require.Len(t, paragraphs, 2)
	assert.NotContains(t, a.Content, "Too short")
	assert.Equal(t, []string{"Programming languages", "Google software", "A", "B", "C"}, a.RelatedTopics)
	assert.Contains(t, a.Markdown, "statically typed")
	assert.NotContains(t, a.Markdown, "tracking")
	assert.NotContains(t, a.Markdown, "[1]")
}

func TestFetchArticle_FallbackTitle(t *testing.T) {
	srv := newTestServer(t, nil)
	a, err := NewFetcher(Options{}).FetchArticle(context.Background(), srv.URL+"/wiki/Plain")
	require.NoError(t, err)
	assert.Equal(t, unknownTitle, a.Title)
	assert.Empty(t, a.Content)
	assert.Empty(t, a.RelatedTopics)
}

func TestFetchArticle_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	f := NewFetcher(Options{})

	_, err := f.FetchArticle(context.Background(), "ftp://example.org/x")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.FetchArticle(context.Background(), srv.URL+"/logo.png")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = f.FetchArticle(context.Background(), srv.URL+"/wiki/Missing")
	assert.Error(t, err)
}

func TestFetchArticle_TruncatedBodyIsError(t *testing.T) {
	srv := newTestServer(t, nil)
	f := NewFetcher(Options{MaxResponseSize: 512})

	_, err := f.FetchArticle(context.Background(), srv.URL+"/wiki/Go")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchArticle_HonoursContext(t *testing.T) {
	srv := newTestServer(t, nil)
	f := NewFetcher(Options{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := f.FetchArticle(ctx, srv.URL+"/wiki/Slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestFetch_ThroughOrchestrator(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	f := NewFetcher(Options{})
	o := fetch.New(cache.NewManager(store.NewMemory(), cache.Options{}), fetch.Options{})

	key, err := NormalizeURL(srv.URL + "/wiki/Go#History")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := o.Resolve(context.Background(), key, f)
		require.NoError(t, err)
		a, err := DecodeArticle(v)
		require.NoError(t, err)
		assert.Equal(t, "Go (programming language)", a.Title)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestNextUserAgent_Rotates(t *testing.T) {
	seen := map[string]bool{}
	for range userAgents {
		seen[NextUserAgent()] = true
	}
	assert.Len(t, seen, len(userAgents))
}
