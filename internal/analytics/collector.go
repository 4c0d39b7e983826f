package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

// Collector buffers events on a channel and publishes them in batches,
// flushing when a batch fills or the interval elapses. Track drops events
// when the buffer is full or the collector is closed.
type Collector struct {
	producer      kafka.Publisher
	mu            sync.RWMutex
	closed        bool
	eventCh       chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	started       atomic.Bool
	done          chan struct{}
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

func NewCollector(producer kafka.Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		producer:      producer,
		eventCh:       make(chan kafka.Event, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		metrics:       cfg.Metrics,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; Close waits for
// the loop to drain.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(context.Background(), batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(ctx, batch)
				batch = make([]kafka.Event, 0, c.batchSize)
			}
		case <-ticker.C:
			c.flush(ctx, batch)
			batch = make([]kafka.Event, 0, c.batchSize)
		case <-ctx.Done():
			batch = c.drainRemaining(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

// Track enqueues event without blocking.
func (c *Collector) Track(event any) {
	key := "analytics"
	if k, ok := event.(Keyed); ok {
		key = k.EventKey()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.count("dropped", 1)
		c.logger.Debug("analytics event dropped (collector closed)", "key", key)
		return
	}
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
		c.count("queued", 1)
	default:
		c.count("dropped", 1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the buffered ones to publish.
// A collector that was never started flushes them itself. Later calls to
// Close are no-ops.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()

	if c.started.CompareAndSwap(false, true) {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.flush(flushCtx, c.drainRemaining(nil))
		return
	}
	<-c.done
	// The loop exits early on context cancellation; publish what arrived
	// after it stopped reading.
	if rest := c.drainRemaining(nil); len(rest) > 0 {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.flush(flushCtx, rest)
	}
}

func (c *Collector) drainRemaining(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.count("failed", len(batch))
		c.logger.Error("analytics batch publish failed", "batch_size", len(batch), "error", err)
		return
	}
	c.count("published", len(batch))
	c.logger.Debug("analytics batch published", "events", len(batch))
}

func (c *Collector) count(status string, n int) {
	if c.metrics != nil {
		c.metrics.AnalyticsEventsQueued.WithLabelValues(status).Add(float64(n))
	}
}
