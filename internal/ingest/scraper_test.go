package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScrapeArticles(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string

	mux.HandleFunc("/learn/forex", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="course">
				<a href="/learn/forex/pips">Pips</a>
				<a href="%s/learn/forex/lots">Lots</a>
				<a href="/learn/forex/pips">Pips duplicate</a>
			</div>
			<a href="/not-a-course">outside</a>
		</body></html>`, srvURL)
	})
	mux.HandleFunc("/learn/forex/pips", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1>What Is a Pip?</h1>
			<div class="fx-section">A pip is the smallest price move.</div>
			<div class="fx-section">Most pairs quote to four decimal places.</div>
		</body></html>`)
	})
	mux.HandleFunc("/learn/forex/lots", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1>What Is a Lot?</h1>
			<div class="fx-section">A lot is a standardized trade size.</div>
		</body></html>`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	stager := newFakeStager()
	s, err := NewScraper(srv.URL+"/learn/forex", stager, nil)
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	if got := s.ScrapeArticles(context.Background()); got != 2 {
		t.Fatalf("staged %d pages, want 2", got)
	}

	first := stager.staged[0]
	if first.title != "What Is a Pip?" {
		t.Errorf("title = %q", first.title)
	}
	if !strings.Contains(first.content, "smallest price move") ||
		!strings.Contains(first.content, "four decimal places") {
		t.Errorf("content missing section text: %q", first.content)
	}
	if first.contentType != "article" {
		t.Errorf("content type = %q", first.contentType)
	}
}

func TestScrapeArticlesSkipsKnownURLs(t *testing.T) {
	var articleHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/learn/forex", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="course"><a href="/learn/forex/pips">Pips</a></div></body></html>`)
	})
	mux.HandleFunc("/learn/forex/pips", func(w http.ResponseWriter, _ *http.Request) {
		articleHits++
		fmt.Fprint(w, `<html><body><h1>Pips</h1><div class="fx-section">text</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stager := newFakeStager()
	stager.known[srv.URL+"/learn/forex/pips"] = true

	s, err := NewScraper(srv.URL+"/learn/forex", stager, nil)
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	if got := s.ScrapeArticles(context.Background()); got != 0 {
		t.Errorf("staged %d pages, want 0", got)
	}
	if articleHits != 0 {
		t.Errorf("article page fetched %d times, want 0", articleHits)
	}
}

func TestScrapeArticlesReadabilityFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/learn/forex", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="course"><a href="/learn/forex/other">Other</a></div></body></html>`)
	})
	mux.HandleFunc("/learn/forex/other", func(w http.ResponseWriter, _ *http.Request) {
		// No fx-section divs; only a generic article body.
		fmt.Fprint(w, `<html><head><title>Leverage</title></head><body>
			<h1>Leverage</h1>
			<article><p>`+strings.Repeat("Leverage amplifies both gains and losses. ", 20)+`</p></article>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stager := newFakeStager()
	s, err := NewScraper(srv.URL+"/learn/forex", stager, nil)
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	if got := s.ScrapeArticles(context.Background()); got != 1 {
		t.Fatalf("staged %d pages, want 1", got)
	}
	if !strings.Contains(stager.staged[0].content, "amplifies both gains and losses") {
		t.Errorf("fallback content = %q", stager.staged[0].content)
	}
}

func TestScrapeArticlesStopsAtPageCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/learn/forex", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="course">`)
		for i := 0; i < 20; i++ {
			fmt.Fprintf(w, `<a href="/learn/forex/lesson-%d">Lesson %d</a>`, i, i)
		}
		fmt.Fprint(w, `</div></body></html>`)
	})
	var articleHits int
	mux.HandleFunc("/learn/forex/", func(w http.ResponseWriter, _ *http.Request) {
		articleHits++
		fmt.Fprint(w, `<html><body><h1>Lesson</h1><div class="fx-section">text</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stager := newFakeStager()
	s, err := NewScraper(srv.URL+"/learn/forex", stager, nil)
	if err != nil {
		t.Fatalf("NewScraper: %v", err)
	}

	if got := s.ScrapeArticles(context.Background()); got != maxPagesPerScrape {
		t.Errorf("staged %d pages, want %d", got, maxPagesPerScrape)
	}
	if articleHits != maxPagesPerScrape {
		t.Errorf("fetched %d lesson pages, want %d: the cap must stop downloads too", articleHits, maxPagesPerScrape)
	}
}

func TestNewScraperValidation(t *testing.T) {
	if _, err := NewScraper("", newFakeStager(), nil); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := NewScraper("://bad", newFakeStager(), nil); err == nil {
		t.Error("expected error for malformed URL")
	}
	if _, err := NewScraper("https://example.com/learn", nil, nil); err == nil {
		t.Error("expected error for nil stager")
	}
}
