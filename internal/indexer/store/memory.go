package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

// Memory is a map-backed Store used by tests, the CLI and single-process
// deployments.
type Memory struct {
	mu      sync.RWMutex
	records map[string]domain.IndexRecord
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]domain.IndexRecord),
	}
}

func (m *Memory) Upsert(ctx context.Context, rec *domain.IndexRecord) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("upsert", err)
	}
	if rec == nil || rec.SourceID == "" {
		return apperrors.Storage("upsert", apperrors.Validation("record without source id"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SourceID] = cloneRecord(rec)
	return nil
}

func (m *Memory) Delete(ctx context.Context, sourceID string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sourceID)
	return nil
}

func (m *Memory) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("truncate", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]domain.IndexRecord)
	return nil
}

func (m *Memory) Scan(ctx context.Context, contentType *domain.ContentType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("scan", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if contentType != nil && rec.ContentType != *contentType {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) QueryCandidates(ctx context.Context, p Predicate) ([]domain.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("query candidates", err)
	}
	if p.Empty() {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.IndexRecord
	for _, rec := range m.records {
		if p.Matches(&rec) {
			out = append(out, cloneRecord(&rec))
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Storage("count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Get returns a copy of the record for sourceID.
func (m *Memory) Get(sourceID string) (domain.IndexRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sourceID]
	if !ok {
		return domain.IndexRecord{}, false
	}
	return cloneRecord(&rec), true
}
