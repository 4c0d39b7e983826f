// Package store persists IndexRecords and answers structural candidate
// queries. Stores never order their results; ranking belongs to the searcher.
package store

import (
	"context"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
)

// Store is the index persistence contract. Every failure is wrapped with
// apperrors.ErrStorage.
type Store interface {
	// Upsert atomically replaces the record keyed by rec.SourceID.
	Upsert(ctx context.Context, rec *domain.IndexRecord) error
	// Delete is a no-op when the id is absent.
	Delete(ctx context.Context, sourceID string) error
	Truncate(ctx context.Context) error
	// Scan lists indexed source ids, optionally restricted to one type.
	Scan(ctx context.Context, contentType *domain.ContentType) ([]string, error)
	QueryCandidates(ctx context.Context, p Predicate) ([]domain.IndexRecord, error)
	Count(ctx context.Context) (int, error)
}

// Field names a searchable record column.
type Field string

const (
	FieldTitle      Field = "title"
	FieldBody       Field = "body"
	FieldExcerpt    Field = "excerpt"
	FieldSKU        Field = "sku"
	FieldCategories Field = "categories"
	FieldTags       Field = "tags"
)

// Value extracts the field from rec.
func (f Field) Value(rec *domain.IndexRecord) string {
	switch f {
	case FieldTitle:
		return rec.Title
	case FieldBody:
		return rec.Body
	case FieldExcerpt:
		return rec.Excerpt
	case FieldSKU:
		return rec.SKU
	case FieldCategories:
		return rec.Categories
	case FieldTags:
		return rec.Tags
	default:
		return ""
	}
}

func (f Field) valid() bool {
	switch f {
	case FieldTitle, FieldBody, FieldExcerpt, FieldSKU, FieldCategories, FieldTags:
		return true
	default:
		return false
	}
}

// Predicate selects records whose type is in ContentTypes and where at least
// one word appears, case-insensitively, in at least one of Fields.
type Predicate struct {
	ContentTypes []domain.ContentType
	Words        []string
	Fields       []Field
}

// Empty reports whether the predicate can match nothing at all.
func (p Predicate) Empty() bool {
	return len(p.ContentTypes) == 0 || len(p.Words) == 0 || len(p.Fields) == 0
}

// Matches evaluates the predicate in memory. It is the reference semantics
// that the SQL rendering in Postgres must agree with.
func (p Predicate) Matches(rec *domain.IndexRecord) bool {
	if p.Empty() || !p.hasType(rec.ContentType) {
		return false
	}
	for _, word := range p.Words {
		w := strings.ToLower(word)
		if w == "" {
			continue
		}
		for _, f := range p.Fields {
			if strings.Contains(strings.ToLower(f.Value(rec)), w) {
				return true
			}
		}
	}
	return false
}

func (p Predicate) hasType(ct domain.ContentType) bool {
	for _, t := range p.ContentTypes {
		if t == ct {
			return true
		}
	}
	return false
}

func cloneRecord(rec *domain.IndexRecord) domain.IndexRecord {
	out := *rec
	if rec.Price != nil {
		v := *rec.Price
		out.Price = &v
	}
	if rec.InStock != nil {
		v := *rec.InStock
		out.InStock = &v
	}
	return out
}
