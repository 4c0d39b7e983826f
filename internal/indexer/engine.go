// Package indexer keeps the index consistent with the content source. It
// reacts to publish, update and delete notifications and can rebuild the
// whole index from scratch.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

// Outcome is the effect a lifecycle transition had on the index.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnindexed Outcome = "unindexed"
	OutcomeDeleted   Outcome = "deleted"
)

// Handler reacts to one lifecycle notification for sourceID.
type Handler func(ctx context.Context, sourceID string) (Outcome, error)

// CacheInvalidator drops cached query results after the index changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// EventTracker receives index change events; analytics.Collector satisfies it.
type EventTracker interface {
	Track(event any)
}

type Engine struct {
	store      store.Store
	source     source.Source
	normalizer *normalizer.Normalizer
	policy     atomic.Pointer[domain.Settings]

	cache   CacheInvalidator
	events  EventTracker
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Engine)

func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(e *Engine) { e.cache = c }
}

func WithEventTracker(t EventTracker) Option {
	return func(e *Engine) { e.events = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(st store.Store, src source.Source, norm *normalizer.Normalizer, policy domain.Settings, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		source:     src,
		normalizer: norm,
		now:        time.Now,
		logger:     slog.Default().With("component", "indexer"),
	}
	e.SetPolicy(policy)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPolicy swaps the settings used for subsequent transitions. Records
// indexed under the old policy stay until they are touched or a reindex runs.
func (e *Engine) SetPolicy(policy domain.Settings) {
	e.policy.Store(&policy)
}

func (e *Engine) Policy() domain.Settings {
	return *e.policy.Load()
}

// Handlers returns the lifecycle registry keyed by event name.
func (e *Engine) Handlers() map[domain.LifecycleEvent]Handler {
	return map[domain.LifecycleEvent]Handler{
		domain.EventPublish: e.OnPublish,
		domain.EventUpdate:  e.OnUpdate,
		domain.EventDelete:  e.OnDelete,
	}
}

// Dispatch routes a named event to its handler.
func (e *Engine) Dispatch(ctx context.Context, event domain.LifecycleEvent, sourceID string) (Outcome, error) {
	if sourceID == "" {
		return "", apperrors.Validation("source id is required")
	}
	h, ok := e.Handlers()[event]
	if !ok {
		return "", apperrors.Validation("unknown lifecycle event %q", event)
	}
	outcome, err := h(ctx, sourceID)
	if e.metrics != nil {
		status := string(outcome)
		if err != nil {
			status = "error"
		}
		e.metrics.LifecycleEventsTotal.WithLabelValues(string(event), status).Inc()
	}
	return outcome, err
}

// OnPublish indexes a newly published item, or makes sure no record exists
// when the item is not indexable.
func (e *Engine) OnPublish(ctx context.Context, sourceID string) (Outcome, error) {
	return e.transition(ctx, domain.EventPublish, sourceID, true)
}

// OnUpdate re-evaluates an item after any change, including transitions
// out of the published state.
func (e *Engine) OnUpdate(ctx context.Context, sourceID string) (Outcome, error) {
	return e.transition(ctx, domain.EventUpdate, sourceID, true)
}

// OnDelete removes the record whatever the item's state.
func (e *Engine) OnDelete(ctx context.Context, sourceID string) (Outcome, error) {
	start := e.now()
	if err := e.store.Delete(ctx, sourceID); err != nil {
		e.countFailure("store")
		return "", err
	}
	e.afterChange(ctx, domain.EventDelete, sourceID, "", OutcomeDeleted, start, true)
	return OutcomeDeleted, nil
}

func (e *Engine) transition(ctx context.Context, event domain.LifecycleEvent, sourceID string, invalidate bool) (Outcome, error) {
	start := e.now()
	item, err := e.source.FetchDocument(ctx, sourceID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			e.countFailure("fetch")
			return "", fmt.Errorf("fetching %s: %w", sourceID, err)
		}
		item = nil
	}

	rec, normErr := e.normalizer.Normalize(ctx, item, e.Policy())
	if rec == nil {
		if err := e.store.Delete(ctx, sourceID); err != nil {
			e.countFailure("store")
			return "", err
		}
		e.afterChange(ctx, event, sourceID, "", OutcomeUnindexed, start, invalidate)
		if normErr != nil {
			e.countFailure("normalize")
			return OutcomeUnindexed, normErr
		}
		return OutcomeUnindexed, nil
	}

	if err := e.store.Upsert(ctx, rec); err != nil {
		e.countFailure("store")
		return "", err
	}
	e.afterChange(ctx, event, sourceID, rec.ContentType, OutcomeIndexed, start, invalidate)
	return OutcomeIndexed, nil
}

// ReindexAll truncates the index and republishes every published item of
// each enabled type. It returns the number of records indexed. Per-item
// failures are logged and skipped; a failure to list a type is reported
// after the remaining types have been processed.
func (e *Engine) ReindexAll(ctx context.Context) (int, error) {
	start := time.Now()
	policy := e.Policy()
	e.logger.Info("reindex started", "types", policy.EnabledTypes())

	if err := e.store.Truncate(ctx); err != nil {
		e.countFailure("store")
		return 0, err
	}
	e.invalidate(ctx)

	var (
		indexed, skipped int
		listErrs         []error
	)
	for _, ct := range policy.EnabledTypes() {
		ids, err := e.source.ListPublishedIDs(ctx, ct)
		if err != nil {
			e.countFailure("fetch")
			e.logger.Error("listing published items failed", "content_type", ct, "error", err)
			listErrs = append(listErrs, fmt.Errorf("listing %s: %w", ct, err))
			continue
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				e.logger.Warn("reindex interrupted", "indexed", indexed, "error", err)
				return indexed, err
			}
			outcome, err := e.transition(ctx, domain.EventPublish, id, false)
			if err != nil {
				skipped++
				e.logger.Warn("reindex skipped item", "source_id", id, "error", err)
				continue
			}
			if outcome == OutcomeIndexed {
				indexed++
			} else {
				skipped++
			}
		}
	}
	e.invalidate(ctx)

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ReindexDuration.Observe(elapsed.Seconds())
		e.metrics.ReindexDocs.Set(float64(indexed))
	}
	e.logger.Info("reindex complete",
		"indexed", indexed,
		"skipped", skipped,
		"duration_ms", elapsed.Milliseconds(),
	)
	return indexed, errors.Join(listErrs...)
}

func (e *Engine) afterChange(ctx context.Context, event domain.LifecycleEvent, sourceID string, ct domain.ContentType, outcome Outcome, start time.Time, invalidate bool) {
	if e.metrics != nil {
		switch outcome {
		case OutcomeIndexed:
			e.metrics.DocsIndexedTotal.Inc()
		default:
			e.metrics.DocsRemovedTotal.Inc()
		}
	}
	if invalidate {
		e.invalidate(ctx)
	}
	if e.events != nil {
		e.events.Track(analytics.IndexEvent{
			Type:        analytics.EventIndexChange,
			SourceID:    sourceID,
			ContentType: string(ct),
			Trigger:     string(event),
			Outcome:     string(outcome),
			LatencyMs:   e.now().Sub(start).Milliseconds(),
			Timestamp:   e.now().UTC(),
		})
	}
	e.logger.Debug("index updated", "source_id", sourceID, "event", event, "outcome", outcome)
}

func (e *Engine) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("query cache invalidation failed", "error", err)
	}
}

func (e *Engine) countFailure(stage string) {
	if e.metrics != nil {
		e.metrics.IndexFailuresTotal.WithLabelValues(stage).Inc()
	}
}
