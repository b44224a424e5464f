package retrieval

import "strings"

const (
	// contextBudget caps the rendered context block in characters.
	contextBudget = 8000
	// minFragment is the smallest truncated remainder worth including.
	minFragment    = 100
	truncateMarker = "... (truncated)"
)

// Context is the outcome of a retrieval attempt. Found is false when the
// tool produced nothing usable; Reason says why, for logs only.
type Context struct {
	Found  bool
	Text   string
	Reason string
}

// NotFound builds an empty Context carrying a diagnostic reason.
func NotFound(reason string) Context {
	return Context{Reason: reason}
}

// buildBlock joins document texts under the character budget. Documents are
// taken in order; the first one that does not fit whole is truncated with a
// marker, and only if more than minFragment characters of it would remain.
// Later documents are dropped.
func buildBlock(docs []string) string {
	var b strings.Builder
	for _, doc := range docs {
		if doc == "" {
			continue
		}
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		remaining := contextBudget - b.Len() - len(sep)
		if len(doc) <= remaining {
			b.WriteString(sep)
			b.WriteString(doc)
			continue
		}
		keep := remaining - len(truncateMarker)
		if keep > minFragment {
			b.WriteString(sep)
			b.WriteString(doc[:keep])
			b.WriteString(truncateMarker)
		}
		break
	}
	return b.String()
}
