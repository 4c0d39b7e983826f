package ranker

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
)

// Tiered scores, checked in this order; the first match wins.
const (
	ScoreExactTitle    = 100
	ScoreTitlePrefix   = 90
	ScoreTitleContains = 80
	ScoreTags          = 70
	ScoreCategories    = 60
	ScoreBody          = 50
)

type ScoredRecord struct {
	Record domain.IndexRecord `json:"record"`
	Score  float64            `json:"score"`
}

// Score rates rec against the full trimmed query. Records matching no tier
// fall back to their RelevanceBaseScore.
func Score(rec *domain.IndexRecord, query string) float64 {
	q := strings.ToLower(query)
	if q == "" {
		return rec.RelevanceBaseScore
	}
	title := strings.ToLower(rec.Title)
	switch {
	case title == q:
		return ScoreExactTitle
	case strings.HasPrefix(title, q):
		return ScoreTitlePrefix
	case strings.Contains(title, q):
		return ScoreTitleContains
	case strings.Contains(strings.ToLower(rec.Tags), q):
		return ScoreTags
	case strings.Contains(strings.ToLower(rec.Categories), q):
		return ScoreCategories
	case strings.Contains(strings.ToLower(rec.Body), q):
		return ScoreBody
	default:
		return rec.RelevanceBaseScore
	}
}

// Rank scores every record and orders them by score, then most recently
// indexed, then source id so equal inputs always give equal output.
func Rank(records []domain.IndexRecord, query string) []ScoredRecord {
	result := make([]ScoredRecord, 0, len(records))
	for i := range records {
		result = append(result, ScoredRecord{
			Record: records[i],
			Score:  Score(&records[i], query),
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.IndexedAt.Equal(b.Record.IndexedAt) {
			return a.Record.IndexedAt.After(b.Record.IndexedAt)
		}
		return a.Record.SourceID < b.Record.SourceID
	})
	return result
}
