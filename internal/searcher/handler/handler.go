package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
)

// Searcher is satisfied by *searcher.Service.
type Searcher interface {
	Search(ctx context.Context, query string, settings *domain.Settings) ([]domain.ScoredResult, error)
	SearchGrouped(ctx context.Context, query string, settings *domain.Settings) (*domain.GroupedResults, error)
	Defaults() domain.Settings
}

// Indexer is satisfied by *indexer.Engine.
type Indexer interface {
	ReindexAll(ctx context.Context) (int, error)
	Dispatch(ctx context.Context, event domain.LifecycleEvent, sourceID string) (indexer.Outcome, error)
}

// CacheAdmin is satisfied by *cache.QueryCache.
type CacheAdmin interface {
	Stats() (hits, misses int64)
	Purge(ctx context.Context) (int64, error)
}

type Handler struct {
	searcher Searcher
	indexer  Indexer
	cache    CacheAdmin
	logger   *slog.Logger
}

// New wires the HTTP surface. cache may be nil when caching is disabled.
func New(s Searcher, idx Indexer, cache CacheAdmin) *Handler {
	return &Handler{
		searcher: s,
		indexer:  idx,
		cache:    cache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Query   string                `json:"query"`
	Total   int                   `json:"total"`
	Results []domain.ScoredResult `json:"results"`
}

type groupedResponse struct {
	Query string `json:"query"`
	*domain.GroupedResults
}

// Search handles GET /api/v1/search?q=...&limit=N&type=product|article.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	settings, err := h.settingsFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	results, err := h.searcher.Search(r.Context(), query, settings)
	if err != nil {
		logger.FromContext(r.Context()).Error("search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Query: query, Total: len(results), Results: results})
}

// SearchGrouped handles GET /api/v1/search/grouped?q=...&per_type=N.
func (h *Handler) SearchGrouped(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	settings, err := h.settingsFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	grouped, err := h.searcher.SearchGrouped(r.Context(), query, settings)
	if err != nil {
		logger.FromContext(r.Context()).Error("grouped search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groupedResponse{Query: query, GroupedResults: grouped})
}

// clientConfig carries the typing hints a search box applies before it
// calls the API. The service itself only enforces domain.MinQueryLength.
type clientConfig struct {
	MinChars       int `json:"min_chars"`
	SearchDelayMs  int `json:"search_delay_ms"`
	MaxResults     int `json:"max_results"`
	ResultsPerType int `json:"results_per_type"`
}

// ClientConfig handles GET /api/v1/search/config.
func (h *Handler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	d := h.searcher.Defaults()
	h.writeJSON(w, http.StatusOK, clientConfig{
		MinChars:       max(d.MinChars, domain.MinQueryLength),
		SearchDelayMs:  d.SearchDelayMs,
		MaxResults:     d.MaxResults,
		ResultsPerType: d.ResultsPerType,
	})
}

// Reindex handles POST /api/v1/admin/reindex. It runs synchronously.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n, err := h.indexer.ReindexAll(r.Context())
	body := map[string]any{
		"indexed":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		h.logger.Error("reindex failed", "indexed", n, "error", err)
		body["error"] = err.Error()
		h.writeJSON(w, apperrors.HTTPStatusCode(err), body)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

// LifecycleEvent handles POST /api/v1/events/{event}/{id}, the webhook the
// CMS calls on publish, update and delete.
func (h *Handler) LifecycleEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event, err := domain.ParseLifecycleEvent(chi.URLParam(r, "event"))
	if err != nil {
		h.writeError(w, apperrors.Validation("%v", err))
		return
	}
	outcome, err := h.indexer.Dispatch(r.Context(), event, id)
	if err != nil {
		logger.FromContext(r.Context()).Warn("lifecycle event failed",
			"event", event,
			"source_id", id,
			"error", err,
		)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"event":     string(event),
		"source_id": id,
		"outcome":   string(outcome),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CachePurge(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Purge(r.Context())
	if err != nil {
		h.logger.Error("cache purge failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache purge failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "purged", "keys_deleted": deleted})
}

// settingsFrom returns nil (service defaults) unless the request narrows
// them. Narrowed settings are still validated by the service.
func (h *Handler) settingsFrom(r *http.Request) (*domain.Settings, error) {
	q := r.URL.Query()
	limit, perType, typ := q.Get("limit"), q.Get("per_type"), q.Get("type")
	if limit == "" && perType == "" && typ == "" {
		return nil, nil
	}
	settings := h.searcher.Defaults()
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return nil, apperrors.Validation("limit must be a positive integer")
		}
		settings.MaxResults = min(n, settings.MaxResults)
	}
	if perType != "" {
		n, err := strconv.Atoi(perType)
		if err != nil || n < 1 {
			return nil, apperrors.Validation("per_type must be a positive integer")
		}
		settings.ResultsPerType = n
	}
	if typ != "" {
		ct, err := domain.ParseContentType(typ)
		if err != nil {
			return nil, apperrors.Validation("%v", err)
		}
		if !settings.TypeEnabled(ct) {
			return nil, apperrors.Validation("content type %s is not searchable", ct)
		}
		settings.SearchProducts = ct == domain.ContentProduct
		settings.SearchArticles = ct == domain.ContentArticle
	}
	return &settings, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
