// Package snapshot persists analytics.Stats to PostgreSQL so aggregates
// survive restarts of the analytics service.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

const TableName = "unified_search_analytics_snapshots"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id          BIGSERIAL PRIMARY KEY,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_` + TableName + `_captured_at ON ` + TableName + ` (captured_at DESC);
`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("analytics-snapshots"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return apperrors.Storage("ensure snapshot schema", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+TableName+` (data, captured_at) VALUES ($1, $2)`,
		data, stats.CapturedAt.UTC(),
	); err != nil {
		return apperrors.Storage("save snapshot", err)
	}
	s.logger.Debug("analytics snapshot saved", "searches", stats.Searches)
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*analytics.Stats, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM `+TableName+` ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("latest snapshot", err)
	}
	var stats analytics.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// List returns up to limit snapshots, newest first. Rows that no longer
// decode are skipped.
func (s *Store) List(ctx context.Context, limit int) ([]analytics.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM `+TableName+` ORDER BY captured_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, apperrors.Storage("list snapshots", err)
	}
	defer rows.Close()

	var out []analytics.Stats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.Storage("scan snapshot", err)
		}
		var stats analytics.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("list snapshots", err)
	}
	return out, nil
}

// Saver is the write side of Store.
type Saver interface {
	Save(ctx context.Context, stats analytics.Stats) error
}

// Run saves collect() every interval (a minute when unset) and once more
// when ctx is done.
func Run(ctx context.Context, saver Saver, collect func() analytics.Stats, interval time.Duration, m *metrics.Metrics) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.WithComponent("analytics-snapshots")
	save := func(ctx context.Context) {
		status := "ok"
		if err := saver.Save(ctx, collect()); err != nil {
			status = "failed"
			log.Error("snapshot failed", "error", err)
		}
		if m != nil {
			m.AnalyticsSnapshots.WithLabelValues(status).Inc()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("periodic snapshots started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			save(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(final)
			cancel()
			return
		}
	}
}
