// Package wiki fetches encyclopedia pages used to seed the vector index.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/joliv/mira/internal/models"
)

// ErrPageNotFound is returned when no article exists for a topic.
var ErrPageNotFound = errors.New("page not found")

// AmbiguousTopicError is returned for disambiguation pages; Candidates holds
// the linked alternatives so a caller can retry with a narrower topic.
type AmbiguousTopicError struct {
	Topic      string
	Candidates []string
}

func (e *AmbiguousTopicError) Error() string {
	return fmt.Sprintf("topic %q is ambiguous, candidates: %s", e.Topic, strings.Join(e.Candidates, ", "))
}

const maxCandidates = 5

type SourceConfig struct {
	// BaseURL overrides the wikipedia host, mainly for tests.
	BaseURL   string
	Language  string
	UserAgent string
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// Source scrapes article text and image URLs from Wikipedia, rate limited so
// bulk ingestion stays a polite client.
type Source struct {
	config  SourceConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config SourceConfig) *Source {
	if config.Language == "" {
		config.Language = "en"
	}
	if config.BaseURL == "" {
		config.BaseURL = fmt.Sprintf("https://%s.wikipedia.org", config.Language)
	}
	if config.UserAgent == "" {
		config.UserAgent = "mira/1.0 (multimodal retrieval pipeline)"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Source{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Fetch retrieves one article: title, canonical URL, paragraph text and every
// content image URL in document order.
func (s *Source) Fetch(ctx context.Context, topic string) (*models.Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pageURL := s.config.BaseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(topic, " ", "_"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, topic)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	if isDisambiguation(doc) {
		return nil, &AmbiguousTopicError{
			Topic:      topic,
			Candidates: candidateTitles(doc),
		}
	}

	page := &models.Page{
		Title:  strings.TrimSpace(doc.Find("#firstHeading").First().Text()),
		URL:    resp.Request.URL.String(),
		Text:   extractParagraphs(doc),
		Images: extractImages(doc),
	}
	if page.Title == "" {
		page.Title = topic
	}

	return page, nil
}

func isDisambiguation(doc *goquery.Document) bool {
	return doc.Find("#disambigbox, #disambig, .mw-disambig, .dmbox-disambig").Length() > 0
}

func candidateTitles(doc *goquery.Document) []string {
	var candidates []string
	doc.Find("#mw-content-text .mw-parser-output ul li a[title]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title, _ := sel.Attr("title")
		if title != "" {
			candidates = append(candidates, title)
		}
		return len(candidates) < maxCandidates
	})
	return candidates
}

func extractParagraphs(doc *goquery.Document) string {
	var builder strings.Builder
	doc.Find("#mw-content-text .mw-parser-output > p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	})
	return builder.String()
}

func extractImages(doc *goquery.Document) []string {
	var images []string
	doc.Find("#mw-content-text img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if src == "" {
			return
		}
		// Wikipedia serves protocol-relative image URLs.
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		images = append(images, src)
	})
	return images
}
