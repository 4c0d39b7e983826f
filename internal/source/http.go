package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/resilience"
)

// HTTPConfig configures the CMS REST client.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	PageSize      int
	Breaker       resilience.CircuitBreakerConfig
}

// HTTP reads items from the CMS REST API:
//
//	GET {base}/items/{id}                    -> RawItem
//	GET {base}/items?type=&status=publish&page=&per_page= -> {"ids": [...], "total_pages": n}
//	GET {base}/items/{id}/terms/{taxonomy}   -> {"terms": [...]}
//
// Calls go through a circuit breaker and are retried with backoff; a 404 is
// an answer, not a failure.
type HTTP struct {
	base     *url.URL
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	retry    resilience.RetryConfig
	pageSize int
	logger   *slog.Logger
}

var errStatusNotFound = errors.New("cms returned 404")

type listResponse struct {
	IDs        []string `json:"ids"`
	TotalPages int      `json:"total_pages"`
}

type termsResponse struct {
	Terms []string `json:"terms"`
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.Validation("cms base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, apperrors.Validation("cms base url %q: %v", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &HTTP{
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker[[]byte]("cms", cfg.Breaker, func(err error) bool {
			return errors.Is(err, errStatusNotFound)
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !errors.Is(err, errStatusNotFound) && !resilience.IsCircuitOpen(err)
			},
		},
		pageSize: cfg.PageSize,
		logger:   slog.Default().With("component", "cms-source", "base_url", base.String()),
	}, nil
}

// BreakerState reports the CMS circuit breaker state for health checks.
func (h *HTTP) BreakerState() gobreaker.State {
	return h.breaker.State()
}

func (h *HTTP) FetchDocument(ctx context.Context, sourceID string) (*domain.RawItem, error) {
	var item domain.RawItem
	err := h.getJSON(ctx, "/items/"+url.PathEscape(sourceID), nil, &item)
	if errors.Is(err, errStatusNotFound) {
		return nil, apperrors.NotFound(sourceID)
	}
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = sourceID
	}
	return &item, nil
}

func (h *HTTP) ListPublishedIDs(ctx context.Context, ct domain.ContentType) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("type", ct.String())
		q.Set("status", domain.StatusPublished)
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(h.pageSize))

		var resp listResponse
		if err := h.getJSON(ctx, "/items", q, &resp); err != nil {
			// A CMS without the type answers 404 on the first page. Later
			// pages disappearing means the listing is incomplete.
			if errors.Is(err, errStatusNotFound) && page == 1 {
				return nil, nil
			}
			if errors.Is(err, errStatusNotFound) {
				err = fmt.Errorf("%w: page vanished mid-listing", apperrors.ErrSourceUnavailable)
			}
			return nil, fmt.Errorf("listing %s page %d: %w", ct, page, err)
		}
		ids = append(ids, resp.IDs...)
		if len(resp.IDs) == 0 || page >= resp.TotalPages {
			return ids, nil
		}
	}
}

// ResolveTerms satisfies normalizer.TermResolver.
func (h *HTTP) ResolveTerms(ctx context.Context, sourceID, taxonomy string) ([]string, error) {
	var resp termsResponse
	err := h.getJSON(ctx, "/items/"+url.PathEscape(sourceID)+"/terms/"+url.PathEscape(taxonomy), nil, &resp)
	if errors.Is(err, errStatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Terms, nil
}

func (h *HTTP) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	u := *h.base
	u.Path = h.base.Path + path
	u.RawQuery = query.Encode()
	target := u.String()

	var body []byte
	err := resilience.Retry(ctx, "cms GET "+path, h.retry, func() error {
		var err error
		body, err = h.breaker.Execute(func() ([]byte, error) {
			return h.get(ctx, target)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return errStatusNotFound
		}
		return fmt.Errorf("%w: GET %s: %w", apperrors.ErrSourceUnavailable, path, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decoding GET %s: %w", apperrors.ErrSourceUnavailable, path, err)
	}
	return nil
}

func (h *HTTP) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("create GET request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errStatusNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body, 200))
	case resp.StatusCode >= 400:
		return nil, resilience.Permanent(fmt.Errorf("client error %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
