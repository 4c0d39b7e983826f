package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/resilience"
)

const (
	ExcerptWords = 20

	DefaultProductPlaceholder = "/assets/images/product-placeholder.png"
	DefaultArticlePlaceholder = "/assets/images/placeholder.png"
)

type SearchResult struct {
	Query      string                `json:"query"`
	Candidates int                   `json:"candidates"`
	Dropped    int                   `json:"dropped"`
	Results    []domain.ScoredResult `json:"results"`
}

func emptyResult(query string) *SearchResult {
	return &SearchResult{Query: query, Results: []domain.ScoredResult{}}
}

type Executor struct {
	store              store.Store
	source             source.Source
	fetchTimeout       time.Duration
	concurrency        int
	productPlaceholder string
	articlePlaceholder string
	metrics            *metrics.Metrics
	logger             *slog.Logger
}

type Option func(*Executor)

// WithFetchTimeout bounds each live source lookup.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Executor) { e.fetchTimeout = d }
}

// WithConcurrency caps parallel live source lookups.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithPlaceholders(product, article string) Option {
	return func(e *Executor) {
		if product != "" {
			e.productPlaceholder = product
		}
		if article != "" {
			e.articlePlaceholder = article
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(st store.Store, src source.Source, opts ...Option) *Executor {
	e := &Executor{
		store:              st,
		source:             src,
		fetchTimeout:       5 * time.Second,
		concurrency:        8,
		productPlaceholder: DefaultProductPlaceholder,
		articlePlaceholder: DefaultArticlePlaceholder,
		logger:             slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildPredicate selects records of an enabled type where any query word
// appears in the title or in any other field enabled by settings.
func BuildPredicate(plan *parser.QueryPlan, settings domain.Settings) store.Predicate {
	fields := []store.Field{store.FieldTitle}
	if settings.SearchInContent {
		fields = append(fields, store.FieldBody)
	}
	if settings.SearchInExcerpt {
		fields = append(fields, store.FieldExcerpt)
	}
	if settings.SearchInSKU {
		fields = append(fields, store.FieldSKU)
	}
	if settings.SearchInCategories {
		fields = append(fields, store.FieldCategories)
	}
	if settings.SearchInTags {
		fields = append(fields, store.FieldTags)
	}
	return store.Predicate{
		ContentTypes: settings.EnabledTypes(),
		Words:        plan.Words,
		Fields:       fields,
	}
}

// Ranking is the scored candidate list for one query and settings, in rank
// order and not yet checked against the live source.
type Ranking struct {
	Query      string                `json:"query"`
	Candidates int                   `json:"candidates"`
	Records    []ranker.ScoredRecord `json:"records"`
}

// Execute runs plan against the index and returns at most MaxResults live,
// published results in rank order. Short queries and settings with no
// enabled content type yield an empty result.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, settings domain.Settings) (*SearchResult, error) {
	ranking, err := e.Rank(ctx, plan, settings)
	if err != nil {
		return nil, err
	}
	return e.Resolve(ctx, ranking, settings)
}

// Rank selects and scores candidates from the index alone.
func (e *Executor) Rank(ctx context.Context, plan *parser.QueryPlan, settings domain.Settings) (*Ranking, error) {
	ranking := &Ranking{Query: plan.Query, Records: []ranker.ScoredRecord{}}
	if plan.TooShort(domain.MinQueryLength) {
		return ranking, nil
	}
	predicate := BuildPredicate(plan, settings)
	if predicate.Empty() {
		return ranking, nil
	}

	candidates, err := e.store.QueryCandidates(ctx, predicate)
	if err != nil {
		return nil, fmt.Errorf("querying candidates for %q: %w", plan.Query, err)
	}
	ranking.Candidates = len(candidates)
	ranking.Records = ranker.Rank(candidates, plan.Query)
	return ranking, nil
}

// Resolve re-checks ranked records against the live source, dropping the
// ones no longer published, and hydrates up to MaxResults of the rest.
func (e *Executor) Resolve(ctx context.Context, ranking *Ranking, settings domain.Settings) (*SearchResult, error) {
	if len(ranking.Records) == 0 {
		return emptyResult(ranking.Query), nil
	}
	results, dropped, err := e.verify(ctx, ranking.Records, settings)
	if err != nil {
		return nil, err
	}
	if dropped > 0 && e.metrics != nil {
		e.metrics.StaleResultsDropped.Add(float64(dropped))
	}

	e.logger.Debug("query executed",
		"query", ranking.Query,
		"candidates", ranking.Candidates,
		"dropped", dropped,
		"results", len(results),
	)
	return &SearchResult{
		Query:      ranking.Query,
		Candidates: ranking.Candidates,
		Dropped:    dropped,
		Results:    results,
	}, nil
}

// verify walks the ranked list in windows sized to the remaining slots,
// fetching each window's live items in parallel. Records whose item is gone
// or no longer published are dropped and the next candidates backfill.
func (e *Executor) verify(ctx context.Context, ranked []ranker.ScoredRecord, settings domain.Settings) ([]domain.ScoredResult, int, error) {
	limit := settings.MaxResults
	results := make([]domain.ScoredResult, 0, min(limit, len(ranked)))
	dropped := 0

	for next := 0; next < len(ranked) && len(results) < limit; {
		end := min(next+limit-len(results), len(ranked))
		window := ranked[next:end]
		items, err := e.fetchLive(ctx, window)
		if err != nil {
			return nil, dropped, err
		}
		for i := range window {
			if !items[i].Published() {
				dropped++
				continue
			}
			results = append(results, e.hydrate(&window[i], items[i], settings))
		}
		next = end
	}
	return results, dropped, nil
}

// fetchLive returns the live item for every record in window, nil where the
// source no longer has it.
func (e *Executor) fetchLive(ctx context.Context, window []ranker.ScoredRecord) ([]*domain.RawItem, error) {
	items := make([]*domain.RawItem, len(window))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range window {
		id := window[i].Record.SourceID
		g.Go(func() error {
			item, err := resilience.CallWithTimeout(gctx, e.fetchTimeout, "live recheck "+id,
				func(ctx context.Context) (*domain.RawItem, error) {
					return e.source.FetchDocument(ctx, id)
				})
			if apperrors.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("rechecking %s: %w", id, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (e *Executor) hydrate(sr *ranker.ScoredRecord, item *domain.RawItem, settings domain.Settings) domain.ScoredResult {
	rec := &sr.Record
	result := domain.ScoredResult{
		ID:     rec.SourceID,
		Type:   rec.ContentType,
		Title:  rec.Title,
		Score:  sr.Score,
		URL:    item.URL,
		Date:   item.PublishedAt,
		Author: item.Author,
	}
	if settings.ShowExcerpt {
		text := rec.Excerpt
		if strings.TrimSpace(text) == "" {
			text = rec.Body
		}
		result.Excerpt = tokenizer.TrimWords(text, ExcerptWords)
	}
	if settings.ShowImages {
		result.Image = item.ImageURL
		if result.Image == "" {
			result.Image = e.placeholder(rec.ContentType)
		}
	}
	if rec.ContentType == domain.ContentProduct {
		hydrateProduct(&result, rec, item.Product, settings)
	}
	return result
}

func hydrateProduct(result *domain.ScoredResult, rec *domain.IndexRecord, product *domain.ProductData, settings domain.Settings) {
	price, currency := rec.Price, ""
	inStock := rec.InStock
	if product != nil {
		if product.Price != nil {
			price = product.Price
		}
		currency = product.Currency
		v := product.InStock
		inStock = &v
		result.Purchasable = product.Purchasable
		result.AddToCartURL = product.AddToCartURL
	}
	result.InStock = inStock
	if settings.ShowPrice && price != nil {
		result.Price = FormatPrice(*price, currency)
	}
	result.AddToCart = settings.ShowAddToCart && result.Purchasable && inStock != nil && *inStock
	if !result.AddToCart {
		result.AddToCartURL = ""
	}
}

func (e *Executor) placeholder(ct domain.ContentType) string {
	if ct == domain.ContentProduct {
		return e.productPlaceholder
	}
	return e.articlePlaceholder
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"INR": "₹",
	"JPY": "¥",
}

// FormatPrice renders a price for display, using the currency symbol when
// one is known and the ISO code otherwise.
func FormatPrice(amount float64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if sym, ok := currencySymbols[code]; ok {
		return fmt.Sprintf("%s%.2f", sym, amount)
	}
	if code == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, code)
}
