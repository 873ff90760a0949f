// Package metadata pulls display metadata (title, thumbnail, video URL)
// from a reel's public page, so a manually added reel gets a usable card
// without the user typing everything in.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ReelMetadata represents metadata extracted from a reel's public page
type ReelMetadata struct {
	Title        string
	Description  string
	ThumbnailURL string
	VideoURL     string
	SiteName     string
	PublishedAt  *time.Time
}

// Extractor handles extracting metadata from reel pages
type Extractor struct {
	httpClient *http.Client
}

// NewExtractor creates a new metadata extractor
func NewExtractor() *Extractor {
	return &Extractor{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Extract fetches the page and extracts its Open Graph metadata.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*ReelMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Reelboard/1.0 (+https://reelboard.app)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	metadata := &ReelMetadata{}
	e.extractOGTags(doc, metadata)
	e.extractTitleTag(doc, metadata)
	return metadata, nil
}

func (e *Extractor) extractOGTags(doc *html.Node, metadata *ReelMetadata) {
	var findMeta func(*html.Node)
	findMeta = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var property, content string
			for _, attr := range n.Attr {
				if attr.Key == "property" || attr.Key == "name" {
					property = attr.Val
				} else if attr.Key == "content" {
					content = attr.Val
				}
			}
			if property != "" && content != "" {
				switch property {
				case "og:title":
					if metadata.Title == "" {
						metadata.Title = content
					}
				case "og:description", "description":
					if metadata.Description == "" {
						metadata.Description = content
					}
				case "og:image", "og:image:secure_url":
					if metadata.ThumbnailURL == "" {
						metadata.ThumbnailURL = content
					}
				case "og:video", "og:video:secure_url", "og:video:url":
					if metadata.VideoURL == "" {
						metadata.VideoURL = content
					}
				case "og:site_name":
					if metadata.SiteName == "" {
						metadata.SiteName = content
					}
				case "og:video:release_date", "article:published_time":
					if metadata.PublishedAt == nil {
						if parsed, err := time.Parse(time.RFC3339, content); err == nil {
							metadata.PublishedAt = &parsed
						}
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findMeta(c)
		}
	}

	findMeta(doc)
}

func (e *Extractor) extractTitleTag(doc *html.Node, metadata *ReelMetadata) {
	if metadata.Title != "" {
		return
	}

	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if metadata.Title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				metadata.Title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findTitle(c)
		}
	}

	findTitle(doc)
}
