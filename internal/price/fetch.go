package price

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const DefaultSelector = "span.ct-price-formatted"

var (
	ErrRequestFailed = errors.New("price request failed")
	ErrPriceNotFound = errors.New("price element not found")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrRequestFailed }

// Fetcher downloads a product page and extracts one price from it.
type Fetcher struct {
	client    *http.Client
	tag       string
	class     string
	userAgent string
	maxBody   int64
}

type FetcherOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithSelector sets a "tag.class" or ".class" selector.
func WithSelector(sel string) FetcherOption {
	return func(f *Fetcher) {
		if tag, class, ok := parseSelector(sel); ok {
			f.tag, f.class = tag, class
		}
	}
}

func WithUserAgent(ua string) FetcherOption { return func(f *Fetcher) { f.userAgent = ua } }

func NewFetcher(opts ...FetcherOption) *Fetcher {
	tag, class, _ := parseSelector(DefaultSelector)
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		tag:       tag,
		class:     class,
		userAgent: "pricebot/1.0",
		maxBody:   4 << 20,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func parseSelector(sel string) (tag, class string, ok bool) {
	sel = strings.TrimSpace(sel)
	i := strings.IndexByte(sel, '.')
	if i < 0 || i == len(sel)-1 {
		return "", "", false
	}
	return strings.ToLower(sel[:i]), sel[i+1:], true
}

// Fetch returns the first price matching the selector on the page at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}
	n := f.find(doc)
	if n == nil {
		return 0, ErrPriceNotFound
	}
	return ParsePrice(textOf(n))
}

func (f *Fetcher) find(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && (f.tag == "" || n.Data == f.tag) && hasClass(n, f.class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := f.find(c); m != nil {
			return m
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ParsePrice parses a displayed price such as "€1,29", "1.29 €" or "1.234,50€".
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			return r
		case r == '€' || r == '$' || r == '£' || r == ' ' || r == '\u00a0':
			return -1
		default:
			return r
		}
	}, s)
	// The last separator is the decimal one; earlier ones group thousands.
	if i := strings.LastIndexAny(s, ",."); i >= 0 {
		s = strings.NewReplacer(",", "", ".", "").Replace(s[:i]) + "." + s[i+1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	return v, nil
}

// Format renders a price the way it is shown in chat messages.
func Format(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
