package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

const scrapeUserAgent = "ForexCompass/1.0 (+https://github.com/forexcompass/compass)"

// maxPagesPerScrape bounds how many unseen lessons one scrape run stages.
// The index lists hundreds of lessons; ingesting them a few per run keeps
// each cycle polite to the source site.
const maxPagesPerScrape = 5

// Scraper crawls an educational site's course index and stages the lesson
// pages it has not seen before.
type Scraper struct {
	indexURL string
	client   *http.Client
	stager   Stager
	logger   *slog.Logger
}

// NewScraper creates a Scraper rooted at the course index URL.
func NewScraper(indexURL string, stager Stager, logger *slog.Logger) (*Scraper, error) {
	if indexURL == "" {
		return nil, fmt.Errorf("index URL is required")
	}
	if _, err := url.ParseRequestURI(indexURL); err != nil {
		return nil, fmt.Errorf("invalid index URL %q: %w", indexURL, err)
	}
	if stager == nil {
		return nil, fmt.Errorf("stager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		indexURL: indexURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		stager:   stager,
		logger:   logger,
	}, nil
}

// ScrapeArticles crawls the index, downloads unseen lesson pages, and
// stages their extracted text. Per-page failures are logged and skipped;
// the returned count is the number of pages staged.
func (s *Scraper) ScrapeArticles(ctx context.Context) int {
	links, err := s.collectLinks(ctx)
	if err != nil {
		s.logger.Error("collecting course links failed", "url", s.indexURL, "error", err)
		return 0
	}
	s.logger.Info("collected course links", "count", len(links))

	var staged int
	for _, link := range links {
		if staged >= maxPagesPerScrape {
			break
		}
		if ctx.Err() != nil {
			break
		}

		seen, err := s.stager.Staged(ctx, link)
		if err != nil {
			s.logger.Warn("checking staged state failed", "url", link, "error", err)
			continue
		}
		if seen {
			continue
		}

		title, content, err := s.extractArticle(ctx, link)
		if err != nil {
			s.logger.Warn("extracting article failed", "url", link, "error", err)
			continue
		}
		if content == "" {
			s.logger.Warn("article had no extractable content", "url", link)
			continue
		}

		if err := s.stager.Stage(ctx, link, title, content, "article", ""); err != nil {
			s.logger.Warn("staging article failed", "url", link, "error", err)
			continue
		}
		staged++
	}

	s.logger.Info("scrape complete", "staged", staged)
	return staged
}

// collectLinks visits the course index and returns the absolute URLs of all
// lesson links, deduplicated in document order.
func (s *Scraper) collectLinks(ctx context.Context) ([]string, error) {
	var (
		links []string
		seen  = map[string]struct{}{}
	)

	c := colly.NewCollector(
		colly.UserAgent(scrapeUserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(30 * time.Second)

	c.OnHTML("div.course a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	if err := c.Visit(s.indexURL); err != nil {
		return nil, fmt.Errorf("visiting index: %w", err)
	}
	c.Wait()

	return links, nil
}

// extractArticle downloads one lesson page and pulls out its title and
// body. The site-specific selectors are tried first; when they match
// nothing, generic readability extraction takes over.
func (s *Scraper) extractArticle(ctx context.Context, pageURL string) (title, content string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("requesting page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parsing page: %w", err)
	}

	title = strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = pageURL
	}

	var sections []string
	doc.Find("div.fx-section").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			sections = append(sections, text)
		}
	})
	if len(sections) > 0 {
		return title, strings.Join(sections, "\n\n"), nil
	}

	// Selector miss: the page layout differs from the course template.
	// Re-render the document and let readability find the body.
	html, err := doc.Html()
	if err != nil {
		return "", "", fmt.Errorf("rendering page for readability: %w", err)
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing page URL: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return "", "", fmt.Errorf("readability extraction: %w", err)
	}
	return title, strings.TrimSpace(article.TextContent), nil
}
