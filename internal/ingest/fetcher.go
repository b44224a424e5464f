package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultFinnhubBaseURL      = "https://finnhub.io"
	defaultAlphaVantageBaseURL = "https://www.alphavantage.co"

	// maxArticlesPerProvider bounds how much of each provider's feed is
	// staged per fetch. The feeds are sorted newest first, so the head is
	// the fresh material.
	maxArticlesPerProvider = 10
)

// Stager is the slice of the staging store the fetcher and scraper need.
type Stager interface {
	Stage(ctx context.Context, sourceURL, title, rawContent, contentType, publishedAtStr string) error
	Staged(ctx context.Context, sourceURL string) (bool, error)
}

// FetcherConfig holds the news provider credentials. Base URLs default to
// the public endpoints and exist as fields for tests.
type FetcherConfig struct {
	FinnhubAPIKey       string
	FinnhubBaseURL      string
	AlphaVantageAPIKey  string
	AlphaVantageBaseURL string
}

// Fetcher pulls forex news from the configured providers into the staging
// queue. A provider with no API key is skipped.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	stager Stager
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, stager Stager, logger *slog.Logger) (*Fetcher, error) {
	if stager == nil {
		return nil, fmt.Errorf("stager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FinnhubBaseURL == "" {
		cfg.FinnhubBaseURL = defaultFinnhubBaseURL
	}
	if cfg.AlphaVantageBaseURL == "" {
		cfg.AlphaVantageBaseURL = defaultAlphaVantageBaseURL
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		stager: stager,
		logger: logger,
	}, nil
}

// FetchNews queries every configured provider and stages what it finds.
// Provider failures are logged and do not stop the other providers; the
// returned count is the number of items handed to the stager.
func (f *Fetcher) FetchNews(ctx context.Context) int {
	var staged int

	if f.cfg.FinnhubAPIKey != "" {
		n, err := f.fetchFinnhub(ctx)
		if err != nil {
			f.logger.Error("finnhub fetch failed", "error", err)
		}
		staged += n
	}

	if f.cfg.AlphaVantageAPIKey != "" {
		n, err := f.fetchAlphaVantage(ctx)
		if err != nil {
			f.logger.Error("alpha vantage fetch failed", "error", err)
		}
		staged += n
	}

	f.logger.Info("news fetch complete", "staged", staged)
	return staged
}

type finnhubArticle struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
	Source   string `json:"source"`
}

func (f *Fetcher) fetchFinnhub(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%s/api/v1/news?category=forex&token=%s",
		f.cfg.FinnhubBaseURL, url.QueryEscape(f.cfg.FinnhubAPIKey))

	var articles []finnhubArticle
	if err := f.getJSON(ctx, endpoint, &articles); err != nil {
		return 0, err
	}

	var staged int
	for _, a := range articles {
		if staged >= maxArticlesPerProvider {
			break
		}
		if a.URL == "" || a.Summary == "" {
			continue
		}
		publishedAt := ""
		if a.Datetime > 0 {
			publishedAt = time.Unix(a.Datetime, 0).UTC().Format(time.RFC3339)
		}
		body := a.Summary
		if a.Source != "" {
			body = fmt.Sprintf("%s (source: %s)", a.Summary, a.Source)
		}
		if err := f.stager.Stage(ctx, a.URL, a.Headline, body, "news", publishedAt); err != nil {
			f.logger.Warn("staging finnhub article failed", "url", a.URL, "error", err)
			continue
		}
		staged++
	}
	return staged, nil
}

type alphaVantageFeed struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
		Summary       string `json:"summary"`
	} `json:"feed"`
}

func (f *Fetcher) fetchAlphaVantage(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%s/query?function=NEWS_SENTIMENT&topics=financial_markets&apikey=%s",
		f.cfg.AlphaVantageBaseURL, url.QueryEscape(f.cfg.AlphaVantageAPIKey))

	var payload alphaVantageFeed
	if err := f.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, err
	}

	var staged int
	for _, a := range payload.Feed {
		if staged >= maxArticlesPerProvider {
			break
		}
		if a.URL == "" || a.Summary == "" {
			continue
		}
		publishedAt := ""
		// Alpha Vantage timestamps look like 20240131T093000.
		if t, err := time.Parse("20060102T150405", a.TimePublished); err == nil {
			publishedAt = t.UTC().Format(time.RFC3339)
		}
		if err := f.stager.Stage(ctx, a.URL, a.Title, a.Summary, "news", publishedAt); err != nil {
			f.logger.Warn("staging alpha vantage article failed", "url", a.URL, "error", err)
			continue
		}
		staged++
	}
	return staged, nil
}

func (f *Fetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("news provider returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading news response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding news response: %w", err)
	}
	return nil
}
