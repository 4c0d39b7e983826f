package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

// Stats is a point-in-time view of everything the Aggregator has folded in.
type Stats struct {
	Searches           int64            `json:"searches"`
	GroupedSearches    int64            `json:"grouped_searches"`
	ZeroResultSearches int64            `json:"zero_result_searches"`
	ZeroResultRate     float64          `json:"zero_result_rate"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	QueriesPerMinute   float64          `json:"queries_per_minute"`
	TopQueries         []QueryCount     `json:"top_queries"`
	ZeroResultQueries  []QueryCount     `json:"zero_result_queries"`
	IndexChanges       map[string]int64 `json:"index_changes"`
	Since              time.Time        `json:"since"`
	CapturedAt         time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type AggregatorConfig struct {
	// TopN bounds the query lists in Stats.
	TopN int
	// MaxSamples bounds the latency window used for percentiles.
	MaxSamples int
	Metrics    *metrics.Metrics
}

// Aggregator folds search and index events into running totals. Query
// counts are keyed by the lower-cased, trimmed query so "Shoes" and
// "shoes " count together.
type Aggregator struct {
	mu           sync.RWMutex
	searches     int64
	grouped      int64
	zeroResults  int64
	cacheHits    int64
	cacheMisses  int64
	latencies    []int64
	next         int
	queries      map[string]int64
	zeroQueries  map[string]int64
	indexChanges map[string]int64

	topN       int
	maxSamples int
	start      time.Time
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 10000
	}
	return &Aggregator{
		latencies:    make([]int64, 0, min(cfg.MaxSamples, 1024)),
		queries:      make(map[string]int64),
		zeroQueries:  make(map[string]int64),
		indexChanges: make(map[string]int64),
		topN:         cfg.TopN,
		maxSamples:   cfg.MaxSamples,
		start:        time.Now(),
		now:          time.Now,
		metrics:      cfg.Metrics,
		logger:       logger.WithComponent("analytics-aggregator"),
	}
}

func (a *Aggregator) RecordSearch(e SearchEvent) {
	query := strings.ToLower(strings.TrimSpace(e.Query))
	zero := e.Type == EventZeroResult || e.Returned == 0

	a.mu.Lock()
	a.searches++
	if e.Grouped {
		a.grouped++
	}
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < a.maxSamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % a.maxSamples
	}
	if query != "" {
		a.queries[query]++
	}
	if zero {
		a.zeroResults++
		if query != "" {
			a.zeroQueries[query]++
		}
	}
	a.mu.Unlock()
	a.count(string(e.Type))
}

func (a *Aggregator) RecordIndex(e IndexEvent) {
	a.mu.Lock()
	a.indexChanges[e.Outcome]++
	a.mu.Unlock()
	a.count(string(EventIndexChange))
}

func (a *Aggregator) count(eventType string) {
	if a.metrics != nil {
		a.metrics.AnalyticsEventsConsumed.WithLabelValues(eventType).Inc()
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	stats := Stats{
		Searches:           a.searches,
		GroupedSearches:    a.grouped,
		ZeroResultSearches: a.zeroResults,
		CacheHits:          a.cacheHits,
		CacheMisses:        a.cacheMisses,
		TopQueries:         topN(a.queries, a.topN),
		ZeroResultQueries:  topN(a.zeroQueries, a.topN),
		IndexChanges:       make(map[string]int64, len(a.indexChanges)),
		Since:              a.start,
		CapturedAt:         now,
	}
	for outcome, n := range a.indexChanges {
		stats.IndexChanges[outcome] = n
	}
	if a.searches > 0 {
		stats.ZeroResultRate = float64(a.zeroResults) / float64(a.searches)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := now.Sub(a.start).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.searches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending for stable output.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

type envelope struct {
	Type EventType `json:"type"`
}

// HandleMessage decodes an event published by a Collector and folds it in.
// Undecodable and unknown events are logged and skipped so they are
// committed rather than redelivered.
func HandleMessage(a *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			a.logger.Warn("skipping undecodable analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch, EventZeroResult:
			e, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				a.logger.Warn("skipping malformed search event", "error", err)
				return nil
			}
			a.RecordSearch(e)
		case EventIndexChange:
			e, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				a.logger.Warn("skipping malformed index event", "error", err)
				return nil
			}
			a.RecordIndex(e)
		default:
			a.logger.Warn("skipping unknown analytics event", "type", env.Type)
		}
		return nil
	}
}
