package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/tokenizer"
)

// QueryPlan is a parsed search query. Query is the trimmed full text used for
// scoring; Words drive candidate selection.
type QueryPlan struct {
	RawQuery string
	Query    string
	Words    []string
}

func Parse(query string) *QueryPlan {
	trimmed := strings.TrimSpace(query)
	return &QueryPlan{
		RawQuery: query,
		Query:    trimmed,
		Words:    tokenizer.Words(trimmed),
	}
}

// TooShort reports whether the query has fewer than floor characters.
func (p *QueryPlan) TooShort(floor int) bool {
	return len(p.Words) == 0 || tokenizer.Length(p.Query) < floor
}

// CacheKey is the lower-cased trimmed query. Inner whitespace is kept
// because scoring compares the full query against titles.
func (p *QueryPlan) CacheKey() string {
	return strings.ToLower(p.Query)
}
