package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

// Memory is an in-process Source. It also resolves taxonomy terms from a
// per-item table, so it satisfies normalizer.TermResolver.
type Memory struct {
	mu    sync.RWMutex
	items map[string]domain.RawItem
	terms map[string]map[string][]string
}

func NewMemory(items ...*domain.RawItem) *Memory {
	m := &Memory{
		items: make(map[string]domain.RawItem),
		terms: make(map[string]map[string][]string),
	}
	for _, item := range items {
		m.Put(item)
	}
	return m
}

// LoadMemoryFile reads a JSON array of raw items, the fixture format used by
// the CLI and local runs.
func LoadMemoryFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading items file %s: %w", path, err)
	}
	var items []*domain.RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing items file %s: %w", path, err)
	}
	return NewMemory(items...), nil
}

// Put inserts or replaces an item.
func (m *Memory) Put(item *domain.RawItem) {
	if item == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = *item
}

// Remove deletes an item, as if it were permanently deleted in the CMS.
func (m *Memory) Remove(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sourceID)
	delete(m.terms, sourceID)
}

// SetStatus changes an item's lifecycle status in place.
func (m *Memory) SetStatus(sourceID, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[sourceID]
	if !ok {
		return false
	}
	item.Status = status
	m.items[sourceID] = item
	return true
}

// SetTerms registers the term names of a taxonomy attribute for an item.
func (m *Memory) SetTerms(sourceID, taxonomy string, terms []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terms[sourceID] == nil {
		m.terms[sourceID] = make(map[string][]string)
	}
	m.terms[sourceID][taxonomy] = append([]string(nil), terms...)
}

func (m *Memory) FetchDocument(ctx context.Context, sourceID string) (*domain.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[sourceID]
	if !ok {
		return nil, apperrors.NotFound(sourceID)
	}
	return &item, nil
}

func (m *Memory) ListPublishedIDs(ctx context.Context, ct domain.ContentType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, item := range m.items {
		itemType, err := domain.ParseContentType(item.Type)
		if err != nil || itemType != ct || !item.Published() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ResolveTerms(ctx context.Context, sourceID, taxonomy string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.terms[sourceID][taxonomy]...), nil
}
