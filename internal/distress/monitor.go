// Package distress scans utterance text for configured distressing keywords.
//
// Matching is whole-word over normalized text: "died" flags "my husband
// died last year", while "war" does not flag "warship". The monitor only
// detects; choosing the gentle redirect and notifying the family are the
// session's job.
package distress

import (
	"strings"

	"github.com/pollyconnect/polly/internal/content"
)

// Monitor holds the normalized keyword set. Read-only after construction;
// safe for concurrent use.
type Monitor struct {
	keywords map[string]string // normalized word → configured keyword
}

// NewMonitor builds a Monitor from the configured keyword list. Multi-word
// keywords are matched as contiguous word sequences.
func NewMonitor(keywords []string) *Monitor {
	m := &Monitor{keywords: make(map[string]string, len(keywords))}
	for _, k := range keywords {
		norm := content.Normalize(k)
		if norm != "" {
			m.keywords[norm] = k
		}
	}
	return m
}

// Scan reports whether text contains any configured keyword as a whole
// word, returning the first configured keyword found in reading order.
func (m *Monitor) Scan(text string) (keyword string, found bool) {
	norm := content.Normalize(text)
	if norm == "" {
		return "", false
	}
	padded := " " + norm + " "

	// Single pass over the utterance words keeps "first in reading order"
	// semantics for one-word keywords, which is all the default set uses.
	for _, w := range strings.Fields(norm) {
		if k, ok := m.keywords[w]; ok {
			return k, true
		}
	}

	// Multi-word keywords fall back to word-aligned containment.
	for kw, k := range m.keywords {
		if strings.ContainsRune(kw, ' ') && strings.Contains(padded, " "+kw+" ") {
			return k, true
		}
	}
	return "", false
}
