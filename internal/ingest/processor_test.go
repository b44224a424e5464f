package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/forexcompass/compass/internal/knowledge"
)

type fakeLease struct {
	item      Item
	completed bool
	released  bool
}

func (l *fakeLease) Item() Item                       { return l.item }
func (l *fakeLease) Complete(_ context.Context) error { l.completed = true; return nil }
func (l *fakeLease) Release(_ context.Context)        { l.released = true }

type fakeClaimer struct {
	lease *fakeLease
	err   error
}

func (c *fakeClaimer) ClaimOne(_ context.Context) (WorkLease, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.lease, nil
}

type fakeCleaner struct{ out string }

func (c *fakeCleaner) CleanContent(_ context.Context, raw string) string {
	if c.out == "" {
		return raw
	}
	return c.out
}

type fakeProcEmbedder struct {
	vec []float32
	err error
}

func (e *fakeProcEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, e.err
}

type fakeWriter struct {
	entries []knowledge.Entry
	err     error
}

func (w *fakeWriter) UpsertLeased(_ context.Context, _ WorkLease, e knowledge.Entry) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, e)
	return nil
}

func newTestProcessor(t *testing.T, c Claimer, cl Cleaner, e Embedder, w KnowledgeWriter) *Processor {
	t.Helper()
	p, err := NewProcessor(c, cl, e, w, nil)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

func TestProcessOne(t *testing.T) {
	lease := &fakeLease{item: Item{
		SourceURL:      "https://example.com/lesson",
		Title:          "Pips",
		RawContent:     "NAV NAV a pip is the smallest move NAV",
		ContentType:    "article",
		PublishedAtStr: "2024-01-31T09:30:00Z",
	}}
	writer := &fakeWriter{}
	p := newTestProcessor(t,
		&fakeClaimer{lease: lease},
		&fakeCleaner{out: "a pip is the smallest move"},
		&fakeProcEmbedder{vec: []float32{0.1, 0.2}},
		writer)

	if err := p.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !lease.completed {
		t.Error("lease must be completed on success")
	}
	if len(writer.entries) != 1 {
		t.Fatalf("wrote %d entries, want 1", len(writer.entries))
	}
	e := writer.entries[0]
	if e.Content != "a pip is the smallest move" {
		t.Errorf("stored content = %q, want the cleaned text", e.Content)
	}
	if e.PublishedAt == nil || e.PublishedAt.Format("2006-01-02") != "2024-01-31" {
		t.Errorf("published at = %v", e.PublishedAt)
	}
}

func TestProcessOneNoWork(t *testing.T) {
	p := newTestProcessor(t,
		&fakeClaimer{err: ErrNoWork},
		&fakeCleaner{}, &fakeProcEmbedder{vec: []float32{0.1}}, &fakeWriter{})

	if err := p.ProcessOne(context.Background()); !errors.Is(err, ErrNoWork) {
		t.Errorf("err = %v, want ErrNoWork", err)
	}
}

func TestProcessOneEmbedFailureReleases(t *testing.T) {
	lease := &fakeLease{item: Item{SourceURL: "https://example.com/x", RawContent: "text", ContentType: "article"}}
	p := newTestProcessor(t,
		&fakeClaimer{lease: lease},
		&fakeCleaner{},
		&fakeProcEmbedder{err: errors.New("provider down")},
		&fakeWriter{})

	if err := p.ProcessOne(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if !lease.released {
		t.Error("lease must be released so the item can be retried")
	}
	if lease.completed {
		t.Error("lease must not be completed on failure")
	}
}

func TestProcessOneWriteFailureReleases(t *testing.T) {
	lease := &fakeLease{item: Item{SourceURL: "https://example.com/x", RawContent: "text", ContentType: "article"}}
	p := newTestProcessor(t,
		&fakeClaimer{lease: lease},
		&fakeCleaner{},
		&fakeProcEmbedder{vec: []float32{0.1}},
		&fakeWriter{err: errors.New("db down")})

	if err := p.ProcessOne(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if !lease.released {
		t.Error("lease must be released on write failure")
	}
}

func TestParsePublishedAt(t *testing.T) {
	if got := parsePublishedAt(""); got != nil {
		t.Errorf("empty string should parse to nil, got %v", got)
	}
	if got := parsePublishedAt("not a time"); got != nil {
		t.Errorf("garbage should parse to nil, got %v", got)
	}
	if got := parsePublishedAt("2024-01-31T09:30:00Z"); got == nil {
		t.Error("valid RFC 3339 should parse")
	}
}
