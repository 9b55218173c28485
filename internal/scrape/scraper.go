// Package scrape fetches a bounded set of pages on a target website and
// extracts email addresses from mailto anchors and page text.
package scrape

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"emailsleuth/internal/pattern"
)

// Scraper fetches pages with a shared, concurrency-safe HTTP client.
type Scraper struct {
	client     *http.Client
	userAgent  string
	commonURLs []string
	logger     *zap.Logger
}

// New builds a Scraper. commonURLs is the configured list of paths to join
// against each base URL (e.g. "/contact", "/about", "/team").
func New(client *http.Client, userAgent string, commonURLs []string, logger *zap.Logger) *Scraper {
	return &Scraper{client: client, userAgent: userAgent, commonURLs: commonURLs, logger: logger}
}

// Scrape implements spec §4.3: visits base and each configured common page
// under the same host, extracts mailto and free-text addresses, and
// returns the lowercased, deduplicated, domain-valid set.
func (s *Scraper) Scrape(ctx context.Context, base *url.URL) []string {
	urls := s.buildURLSet(base)

	found := make(map[string]bool)
	for _, u := range urls {
		emails, err := s.scrapePage(ctx, u)
		if err != nil {
			s.logger.Debug("scrape page failed", zap.String("url", u.String()), zap.Error(err))
			continue
		}
		for _, e := range emails {
			if isDomainValid(e) {
				found[strings.ToLower(e)] = true
			}
		}
	}

	out := make([]string, 0, len(found))
	for e := range found {
		out = append(out, e)
	}
	return out
}

func (s *Scraper) buildURLSet(base *url.URL) []*url.URL {
	seen := map[string]bool{base.String(): true}
	urls := []*url.URL{base}

	for _, p := range s.commonURLs {
		joined, err := base.Parse(p)
		if err != nil {
			continue
		}
		if joined.Host != base.Host {
			continue
		}
		key := joined.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, joined)
	}
	return urls
}

func (s *Scraper) scrapePage(ctx context.Context, u *url.URL) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return extract(body), nil
}

// extract implements the HTML extraction rules: mailto anchors first, then
// the concatenated body text run through the email regex.
func extract(body []byte) []string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var emails []string
	var bodyNode *html.Node

	var findAnchorsAndBody func(*html.Node)
	findAnchorsAndBody = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.HasPrefix(attr.Val, "mailto:") {
					addr := strings.TrimPrefix(attr.Val, "mailto:")
					if idx := strings.Index(addr, "?"); idx >= 0 {
						addr = addr[:idx]
					}
					addr = strings.TrimSpace(addr)
					if addr != "" && pattern.EmailRegex.MatchString(addr) {
						emails = append(emails, addr)
					}
				}
			}
		}
		if n.Type == html.ElementNode && n.Data == "body" && bodyNode == nil {
			bodyNode = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findAnchorsAndBody(c)
		}
	}
	findAnchorsAndBody(doc)

	scope := bodyNode
	if scope == nil {
		scope = doc
	}

	var textParts []string
	var collectText func(*html.Node)
	collectText = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				textParts = append(textParts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(c)
		}
	}
	collectText(scope)

	text := strings.Join(textParts, " ")
	for _, m := range pattern.EmailRegex.FindAllString(text, -1) {
		emails = append(emails, m)
	}

	return emails
}

var validHostPattern = regexp.MustCompile(`\.`)

// isDomainValid implements the domain-validity filter: local@host where
// host contains a "." and the address length exceeds 3.
func isDomainValid(email string) bool {
	if len(email) <= 3 {
		return false
	}
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return false
	}
	return validHostPattern.MatchString(parts[1])
}
