// Package knowledge manages the agent's knowledge base: AI-processed
// articles and news with their embeddings, stored in PostgreSQL + pgvector.
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Content type values for knowledge entries.
const (
	// TypeArticle is evergreen educational content.
	TypeArticle = "article"

	// TypeNews is timely market news.
	TypeNews = "news"
)

// Entry is one knowledge base record.
type Entry struct {
	ID          uuid.UUID
	SourceURL   string
	Title       string
	Content     string // AI-cleaned text
	Embedding   []float32
	ContentType string // TypeArticle or TypeNews
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
