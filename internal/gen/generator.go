// Package gen wraps the model providers behind small interfaces: a text
// generator backed by Genkit and an embedder backed by an OpenAI-compatible
// endpoint. Callers depend on the interfaces so tests can substitute fakes.
package gen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const (
	synthesizeSystem = `You are Forex Compass, a patient forex education assistant.
Answer the user's question using ONLY the reference material provided.
If the material does not cover the question, say what it does cover and
suggest the user rephrase. Keep answers clear and beginner-friendly.
Never give financial advice or trade recommendations.`

	generalSystem = `You are Forex Compass, a patient forex education assistant.
Answer the user's question from general knowledge about foreign exchange
markets and trading education. Keep answers clear and beginner-friendly.
Never give financial advice or trade recommendations.`

	cleanSystem = `You clean scraped web content for a knowledge base.
Remove navigation text, advertisements, cookie banners, and boilerplate.
Fix broken formatting. Preserve the substantive educational content
verbatim. Return only the cleaned text with no commentary.`
)

// Apology strings returned to the user when generation fails. They are part
// of the response contract, not log messages.
const (
	SynthesizeApology = "I'm sorry, I had trouble composing an answer from my reference material. Please try again in a moment."
	GeneralApology    = "I'm sorry, I couldn't answer that right now. Please try again in a moment."
)

// Generator produces answers with the configured Gemini model.
type Generator struct {
	genkit    *genkit.Genkit
	modelName string
	logger    *slog.Logger
}

// NewGenerator creates a Generator. The genkit instance must already have
// the Google AI plugin initialized.
func NewGenerator(g *genkit.Genkit, modelName string, logger *slog.Logger) (*Generator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{genkit: g, modelName: modelName, logger: logger}, nil
}

// Synthesize answers a question grounded in retrieved reference material.
// On model failure the returned text is a fixed apology string and the
// error reports the cause; callers deliver the apology to the user and use
// the error to mark the task degraded.
func (g *Generator) Synthesize(ctx context.Context, question, material, history string) (string, error) {
	prompt := buildPrompt(question, material, history)

	resp, err := genkit.Generate(ctx, g.genkit,
		ai.WithModelName(g.modelName),
		ai.WithSystem(synthesizeSystem),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		g.logger.Error("synthesis generation failed", "error", err)
		return SynthesizeApology, fmt.Errorf("generating grounded answer: %w", err)
	}
	return resp.Text(), nil
}

// GeneralAnswer answers from model knowledge when no reference material is
// available. Failures return a fixed apology string alongside the error.
func (g *Generator) GeneralAnswer(ctx context.Context, question, history string) (string, error) {
	prompt := buildPrompt(question, "", history)

	resp, err := genkit.Generate(ctx, g.genkit,
		ai.WithModelName(g.modelName),
		ai.WithSystem(generalSystem),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		g.logger.Error("general answer generation failed", "error", err)
		return GeneralApology, fmt.Errorf("generating general answer: %w", err)
	}
	return resp.Text(), nil
}

// CleanContent strips boilerplate from scraped text. If the model call
// fails the raw text is returned unchanged so ingestion can proceed.
func (g *Generator) CleanContent(ctx context.Context, raw string) string {
	resp, err := genkit.Generate(ctx, g.genkit,
		ai.WithModelName(g.modelName),
		ai.WithSystem(cleanSystem),
		ai.WithPrompt(raw),
	)
	if err != nil {
		g.logger.Warn("content cleaning failed, keeping raw text", "error", err)
		return raw
	}
	cleaned := strings.TrimSpace(resp.Text())
	if cleaned == "" {
		return raw
	}
	return cleaned
}

func buildPrompt(question, material, history string) string {
	var b strings.Builder
	if history != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	if material != "" {
		b.WriteString("Reference material:\n")
		b.WriteString(material)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
