// Package normalizer maps raw CMS items onto the uniform IndexRecord schema.
package normalizer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

// FocusKeywordKey is the SEO plugin meta key whose value is appended to tags.
const FocusKeywordKey = "_yoast_wpseo_focuskw"

// SupplementalMetaKeys are appended to a product body, in this order.
var SupplementalMetaKeys = []string{
	"_product_benefits",
	"_pain_points",
	"_use_cases",
	"_target_audience",
	"_custom_keywords",
}

// TermResolver looks up the term names of a taxonomy-backed attribute when
// the source item did not carry them inline.
type TermResolver interface {
	ResolveTerms(ctx context.Context, sourceID, taxonomy string) ([]string, error)
}

type Normalizer struct {
	resolver TermResolver
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Normalizer)

func WithTermResolver(r TermResolver) Option {
	return func(n *Normalizer) { n.resolver = r }
}

func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the index record for item, or nil when the item must not
// be indexed under policy. An empty title is an error rather than a skip.
func (n *Normalizer) Normalize(ctx context.Context, item *domain.RawItem, policy domain.Settings) (*domain.IndexRecord, error) {
	if !item.Published() {
		return nil, nil
	}
	ct, err := domain.ParseContentType(item.Type)
	if err != nil {
		return nil, nil
	}
	if !policy.TypeEnabled(ct) {
		return nil, nil
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, apperrors.Normalization(item.ID, "title is required")
	}

	rec := &domain.IndexRecord{
		SourceID:    item.ID,
		ContentType: ct,
		Title:       title,
		Excerpt:     tokenizer.StripMarkup(item.Excerpt),
		Categories:  tokenizer.JoinTerms(item.Categories),
	}

	body := []string{tokenizer.StripMarkup(item.Content)}
	tags := [][]string{item.Tags}

	if ct == domain.ContentProduct && item.Product != nil {
		p := item.Product
		rec.SKU = strings.TrimSpace(p.SKU)
		rec.Price = p.Price
		inStock := p.InStock
		rec.InStock = &inStock

		body = append(body, tokenizer.StripMarkup(p.ShortDescription))
		for _, key := range SupplementalMetaKeys {
			body = append(body, tokenizer.StripMarkup(item.Meta[key]))
		}

		values, err := n.attributeValues(ctx, item)
		if err != nil {
			n.logger.Warn("attribute extraction incomplete, indexing partial data",
				"source_id", item.ID,
				"error", err,
			)
		}
		tags = append(tags, values)
	}
	if kw := strings.TrimSpace(item.Meta[FocusKeywordKey]); kw != "" {
		tags = append(tags, []string{kw})
	}

	rec.Body = joinNonEmpty(body)
	rec.Tags = tokenizer.JoinTerms(tags...)
	rec.RelevanceBaseScore = BaseScore(rec.Title, rec.Body)
	rec.IndexedAt = n.now()
	return rec, nil
}

// BaseScore is the tie-break fallback score frozen at index time.
func BaseScore(title, body string) float64 {
	return float64(tokenizer.Length(title)) + float64(tokenizer.Length(body))/100
}

// attributeValues collects attribute values in declaration order. A failing
// attribute is skipped; the values gathered so far are still returned along
// with the joined errors.
func (n *Normalizer) attributeValues(ctx context.Context, item *domain.RawItem) ([]string, error) {
	var (
		values []string
		errs   []error
	)
	for _, attr := range item.Product.Attributes {
		if !attr.Taxonomy {
			values = append(values, attr.Options...)
			continue
		}
		if len(attr.Terms) > 0 {
			values = append(values, attr.Terms...)
			continue
		}
		if attr.Name == "" {
			errs = append(errs, apperrors.Normalization(item.ID, "taxonomy attribute without a name"))
			continue
		}
		if n.resolver == nil {
			continue
		}
		terms, err := n.resolver.ResolveTerms(ctx, item.ID, attr.Name)
		if err != nil {
			errs = append(errs, apperrors.Normalization(item.ID, "resolving "+attr.Name+": "+err.Error()))
			continue
		}
		values = append(values, terms...)
	}
	return values, errors.Join(errs...)
}

func joinNonEmpty(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
