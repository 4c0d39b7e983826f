// Package analytics ships search and index events to Kafka for offline
// analysis. Delivery is best-effort: tracking never blocks or fails a search.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventIndexChange EventType = "index_change"
)

// Keyed events choose their own partition key.
type Keyed interface {
	EventKey() string
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Words     []string  `json:"words"`
	Returned  int       `json:"returned"`
	Grouped   bool      `json:"grouped"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e SearchEvent) EventKey() string { return e.Query }

type IndexEvent struct {
	Type        EventType `json:"type"`
	SourceID    string    `json:"source_id"`
	ContentType string    `json:"content_type,omitempty"`
	Trigger     string    `json:"trigger"`
	Outcome     string    `json:"outcome"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventKey keeps every change to one item on one partition, in order.
func (e IndexEvent) EventKey() string { return e.SourceID }
