package gen

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		question string
		material string
		history  string
		contains []string
		excludes []string
	}{
		{
			name:     "question only",
			question: "what is a pip?",
			contains: []string{"Question: what is a pip?"},
			excludes: []string{"Reference material:", "Recent conversation:"},
		},
		{
			name:     "with context",
			question: "what is a pip?",
			material: "A pip is the smallest price move.",
			contains: []string{"Reference material:\nA pip is the smallest price move.", "Question: what is a pip?"},
			excludes: []string{"Recent conversation:"},
		},
		{
			name:     "with history and context",
			question: "and a lot?",
			material: "A lot is a trade size.",
			history:  "User: what is a pip?\nYou: the smallest price move",
			contains: []string{"Recent conversation:", "Reference material:", "Question: and a lot?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildPrompt(tt.question, tt.material, tt.history)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt missing %q:\n%s", want, got)
				}
			}
			for _, not := range tt.excludes {
				if strings.Contains(got, not) {
					t.Errorf("prompt should not contain %q:\n%s", not, got)
				}
			}
		})
	}
}

func TestNewEmbedderValidation(t *testing.T) {
	if _, err := NewEmbedder("", "", "model", nil); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewEmbedder("key", "", "", nil); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewEmbedder("key", "https://example.com/v1", "text-embedding-ada-002", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
