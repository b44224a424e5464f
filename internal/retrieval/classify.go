// Package retrieval turns a user prompt into grounding material: it routes
// the prompt to a tool, runs the vector search or news lookup, and renders
// the result into a bounded context block for the model.
package retrieval

import "strings"

// ToolKind names the retrieval tool a prompt routes to.
type ToolKind int

const (
	// ToolKnowledgeSearch searches the educational knowledge base.
	ToolKnowledgeSearch ToolKind = iota
	// ToolLatestNews returns recently ingested market news.
	ToolLatestNews
)

// String implements fmt.Stringer for log output.
func (k ToolKind) String() string {
	switch k {
	case ToolLatestNews:
		return "latest_news"
	default:
		return "knowledge_search"
	}
}

// newsKeywords route a prompt to the news tool when any of them appears as
// a substring, case-insensitively.
var newsKeywords = []string{
	"news",
	"market update",
	"latest",
	"trends",
	"market summary",
}

// Classify picks the retrieval tool for a prompt. Knowledge search is the
// default; news wins only on an explicit keyword match.
func Classify(prompt string) ToolKind {
	lower := strings.ToLower(prompt)
	for _, kw := range newsKeywords {
		if strings.Contains(lower, kw) {
			return ToolLatestNews
		}
	}
	return ToolKnowledgeSearch
}
