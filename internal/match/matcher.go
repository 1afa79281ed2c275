// Package match maps noisy OCR strings onto canonical item names from the
// master vocabulary. Matching is layered from cheapest to most permissive;
// no-match is always preferred over a wrong match, because a wrong row anchor
// corrupts every number later attached to that row.
package match

import (
	"regexp"
	"strings"

	"github.com/instantwaste/formscan/internal/vocab"
)

// Matcher resolves OCR text against the vocabulary for both categories.
// It is immutable after construction; Match is a pure function.
type Matcher struct {
	completed  []string
	raw        []string
	normalized map[string]string
}

// NewMatcher indexes the vocabulary for matching.
func NewMatcher(v *vocab.Vocabulary) *Matcher {
	m := &Matcher{
		completed:  v.Items(vocab.CompletedWaste),
		raw:        v.Items(vocab.RawWaste),
		normalized: make(map[string]string),
	}
	for _, item := range m.completed {
		m.normalized[Normalize(item)] = item
	}
	for _, item := range m.raw {
		m.normalized[Normalize(item)] = item
	}
	return m
}

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonLatinRe   = regexp.MustCompile(`[\x{0900}-\x{097F}\x{0F00}-\x{0FFF}\x{AC00}-\x{D7AF}]`)
)

// Normalize lowercases, strips punctuation and collapses whitespace so that
// vocabulary entries and OCR text compare on content only.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// cleanOCRText strips non-Latin scripts that page-level OCR occasionally
// hallucinates over handwriting.
func cleanOCRText(text string) string {
	s := nonLatinRe.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Match resolves ocrText to a canonical item name in the given category.
// The second return value is false when nothing in the vocabulary is a safe
// match; a partial or invented string is never returned.
//
// The ladder, first hit wins:
//  1. exact normalized lookup
//  2. reject short strings (<=3 chars) outright
//  3. substring containment either direction (min length 5)
//  4. bounded Levenshtein with length-scaled ceilings and a prefix gate
//     for short candidates
func (m *Matcher) Match(ocrText string, category vocab.Category) (string, bool) {
	cleaned := cleanOCRText(ocrText)
	if cleaned == "" {
		return "", false
	}
	normalized := Normalize(cleaned)
	if normalized == "" {
		return "", false
	}

	if canonical, ok := m.normalized[normalized]; ok {
		return canonical, true
	}

	// Too short to disambiguate safely without an exact hit.
	if len(cleaned) <= 3 {
		return "", false
	}

	list := m.raw
	if category == vocab.CompletedWaste {
		list = m.completed
	}

	for _, item := range list {
		itemNorm := Normalize(item)
		if len(normalized) >= 5 && strings.Contains(itemNorm, normalized) {
			return item, true
		}
		if len(itemNorm) >= 5 && strings.Contains(normalized, itemNorm) {
			return item, true
		}
	}

	return m.fuzzyMatch(cleaned, normalized, list)
}

// maxDistanceFor scales the edit-distance ceiling with input length so that
// long item names tolerate more OCR damage than short ones.
func maxDistanceFor(length int) int {
	switch {
	case length <= 6:
		return 1
	case length <= 10:
		return 2
	case length <= 15:
		return 3
	default:
		return 4
	}
}

func (m *Matcher) fuzzyMatch(cleaned, normalized string, list []string) (string, bool) {
	maxDistance := maxDistanceFor(len(cleaned))

	best := ""
	bestDistance := maxDistance + 1

	for _, item := range list {
		itemNorm := Normalize(item)
		d := Levenshtein(normalized, itemNorm)
		if d >= bestDistance || d > maxDistance {
			continue
		}

		// Short strings share character statistics too easily; require the
		// prefixes to roughly agree before accepting a non-exact match.
		if d > 0 && len(cleaned) <= 8 {
			n := min(3, min(len(normalized), len(itemNorm)))
			if Levenshtein(normalized[:n], itemNorm[:n]) >= 2 {
				continue
			}
		}

		best = item
		bestDistance = d
	}

	if best == "" {
		return "", false
	}
	return best, true
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(min(prev[j]+1, curr[j-1]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Items exposes the vocabulary list for a category, for client dropdowns.
func (m *Matcher) Items(category vocab.Category) []string {
	src := m.raw
	if category == vocab.CompletedWaste {
		src = m.completed
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
