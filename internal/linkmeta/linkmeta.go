// Package linkmeta looks up page metadata for links being submitted.
package linkmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTitle is returned when a page has neither a <title> nor an og:title.
var ErrNoTitle = errors.New("page has no title")

// maxBody caps how much of a page is read while looking for its title.
const maxBody = 2 << 20

// Fetcher fetches pages and extracts their titles.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher wires an HTTP client; a nil client gets a 10s timeout.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Title returns the trimmed <title> of pageURL, falling back to og:title.
func (f *Fetcher) Title(ctx context.Context, pageURL string) (string, error) {
	doc, err := f.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return extractTitle(doc)
}

func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractTitle(doc *goquery.Document) (string, error) {
	if title := collapseSpace(doc.Find("head title").First().Text()); title != "" {
		return title, nil
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := collapseSpace(og); title != "" {
			return title, nil
		}
	}
	return "", ErrNoTitle
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
