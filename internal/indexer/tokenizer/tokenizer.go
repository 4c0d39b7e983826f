// Package tokenizer turns raw text into the pieces the index works with:
// markup-free body text, whitespace-delimited query words, joined term lists
// and word-trimmed excerpts. It deliberately does no stemming or stop-word
// removal; matching is plain case-insensitive substring matching.
package tokenizer

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TermSeparator joins category and tag names into one searchable string.
const TermSeparator = ", "

// Ellipsis is appended to excerpts that were cut short.
const Ellipsis = "…"

// stripPolicy drops every element; script and style bodies are skipped by
// bluemonday's defaults.
var stripPolicy = newStripPolicy()

func newStripPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	// "<p>a</p><p>b</p>" must not collapse into "ab".
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// StripMarkup removes all markup from s, decodes entities and collapses
// runs of whitespace into single spaces.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// Words splits a query on whitespace, discarding empty tokens.
func Words(query string) []string {
	return strings.Fields(query)
}

// JoinTerms joins term names with TermSeparator, skipping blanks. Commas
// inside a term are replaced so the joined string splits back unambiguously.
func JoinTerms(terms ...[]string) string {
	parts := make([]string, 0)
	for _, group := range terms {
		for _, term := range group {
			term = strings.Join(strings.Fields(strings.ReplaceAll(term, ",", " ")), " ")
			if term == "" {
				continue
			}
			parts = append(parts, term)
		}
	}
	return strings.Join(parts, TermSeparator)
}

// SplitTerms reverses JoinTerms.
func SplitTerms(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, TermSeparator)
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			terms = append(terms, p)
		}
	}
	return terms
}

// TrimWords keeps the first n words of text, appending Ellipsis when words
// were dropped.
func TrimWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + Ellipsis
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}
