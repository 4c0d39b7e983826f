// Package source is the boundary to the content-management system that owns
// the raw items. The indexer fetches and enumerates through it; the searcher
// uses it to re-check that a candidate is still live.
package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
)

// Source fetches raw items from the CMS.
type Source interface {
	// FetchDocument returns the current state of an item, or an error
	// matching apperrors.ErrNotFound when the item no longer exists.
	FetchDocument(ctx context.Context, sourceID string) (*domain.RawItem, error)
	// ListPublishedIDs enumerates published items of one type.
	ListPublishedIDs(ctx context.Context, ct domain.ContentType) ([]string, error)
}
