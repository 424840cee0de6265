// Package respond picks spoken responses from the configured variant banks.
//
// Selection is uniform random among eligible variants, where the variant
// chosen on the previous call for the same category is ineligible. A
// category with a single variant always returns it.
package respond

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/pollyconnect/polly/internal/content"
)

// Option configures a [Selector] during construction.
type Option func(*Selector)

// WithFamiliarName substitutes name for the {name} placeholder in every
// selected response. Used in memory-care mode.
func WithFamiliarName(name string) Option {
	return func(s *Selector) { s.familiar = name }
}

// WithRandFunc overrides the random index source. Tests use this for
// deterministic picks; the default is [rand.Intn].
func WithRandFunc(fn func(n int) int) Option {
	return func(s *Selector) { s.randIdx = fn }
}

// Selector owns one session's response-selection state (the per-category
// previous pick). Safe for concurrent use.
type Selector struct {
	lib      *content.Library
	familiar string
	randIdx  func(n int) int

	mu   sync.Mutex
	last map[content.ResponseCategory]string
}

// NewSelector creates a Selector over the response banks in lib.
func NewSelector(lib *content.Library, opts ...Option) *Selector {
	s := &Selector{
		lib:     lib,
		randIdx: rand.Intn,
		last:    make(map[content.ResponseCategory]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Pick returns one variant from the category's bank, never repeating the
// immediately previous pick for that category within this session. Returns
// "" for a category with no variants (content validation prevents that for
// all known categories).
func (s *Selector) Pick(cat content.ResponseCategory) string {
	variants := s.lib.Responses(cat)
	if len(variants) == 0 {
		return ""
	}

	s.mu.Lock()
	prev := s.last[cat]

	eligible := variants
	if len(variants) > 1 && prev != "" {
		eligible = make([]string, 0, len(variants)-1)
		for _, v := range variants {
			if v != prev {
				eligible = append(eligible, v)
			}
		}
	}

	choice := eligible[s.randIdx(len(eligible))]
	s.last[cat] = choice
	s.mu.Unlock()

	if s.familiar != "" {
		choice = strings.ReplaceAll(choice, "{name}", s.familiar)
	}
	return choice
}
