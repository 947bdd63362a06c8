package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const (
	RequestTimeout  = 10 * time.Second
	MaxResponseSize = 4 * 1024 * 1024 // 4MB
)

var (
	ErrEmptyBody       = errors.New("empty response body")
	ErrUnsupportedType = errors.New("unsupported content type: only HTML articles are supported")
	ErrTooLarge        = errors.New("response body exceeds size limit")
)

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond caps outgoing requests; <= 0 disables the limit.
	RequestsPerSecond float64
	MaxParagraphs     int
	MinParagraphLen   int
	MaxTopics         int
	MaxResponseSize   int
}

// Fetcher retrieves and parses Wikipedia articles. It is safe for concurrent
// use: every call works on its own clone of the base collector.
type Fetcher struct {
	base    *colly.Collector
	limiter *rate.Limiter
	limits  parseLimits
	maxBody int
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = RequestTimeout
	}
	if opts.MaxParagraphs <= 0 {
		opts.MaxParagraphs = 10
	}
	if opts.MinParagraphLen <= 0 {
		opts.MinParagraphLen = 100
	}
	if opts.MaxTopics <= 0 {
		opts.MaxTopics = 5
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = MaxResponseSize
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.MaxBodySize(opts.MaxResponseSize),
	)
	c.SetRequestTimeout(opts.Timeout)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Fetcher{
		base:    c,
		limiter: limiter,
		limits: parseLimits{
			maxParagraphs:   opts.MaxParagraphs,
			minParagraphLen: opts.MinParagraphLen,
			maxTopics:       opts.MaxTopics,
		},
		maxBody: opts.MaxResponseSize,
	}
}

// Fetch implements fetch.Fetcher: it retrieves the article at key and
// returns it JSON encoded.
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	a, err := f.FetchArticle(ctx, key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (f *Fetcher) FetchArticle(ctx context.Context, rawURL string) (*Article, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, ErrInvalidURL
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		body        []byte
		finalURL    string
		contentType string
	)
	c := f.base.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", NextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		body = r.Body
		contentType = r.Headers.Get("Content-Type")
	})

	if err := c.Visit(rawURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	// colly truncates silently at MaxBodySize; a cut article must not be cached.
	if len(body) >= f.maxBody {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, rawURL, f.maxBody)
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	a := parseArticle(doc, f.limits)
	a.URL = finalURL
	return a, nil
}
