// Package loadtest drives concurrent search traffic against a running
// searcher and summarises latency and status codes.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultQueries mimic what shoppers type into a storefront search box.
var DefaultQueries = []string{
	"shoes", "red shoes", "running", "leather boots", "gift card",
	"sale", "how to clean", "size guide", "sandals", "wool socks",
}

type Config struct {
	BaseURL     string
	Concurrency int
	// Duration bounds the run; Requests, when positive, stops it earlier.
	Duration time.Duration
	Requests int64
	Queries  []string
	Grouped  bool
	Client   *http.Client
}

type Report struct {
	Total       int64
	Success     int64
	Errors      int64
	Elapsed     time.Duration
	StatusCodes map[int]int64
	Min         time.Duration
	Avg         time.Duration
	P50         time.Duration
	P90         time.Duration
	P99         time.Duration
	Max         time.Duration
	StdDev      time.Duration
}

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
}

func (r *recorder) record(d time.Duration, status int, err error) {
	r.total.Add(1)
	if err != nil || status < 200 || status >= 300 {
		r.errors.Add(1)
	} else {
		r.success.Add(1)
	}
	if err != nil {
		return
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.codes[status]++
	r.mu.Unlock()
}

// Run issues searches from Concurrency workers until the duration elapses,
// the request budget is spent or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/search"
	if cfg.Grouped {
		endpoint += "/grouped"
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	rec := &recorder{codes: make(map[int]int64)}
	var issued atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				if cfg.Requests > 0 && issued.Add(1) > cfg.Requests {
					return nil
				}
				target := endpoint + "?q=" + url.QueryEscape(cfg.Queries[i%len(cfg.Queries)])
				d, status, err := do(ctx, cfg.Client, target)
				if ctx.Err() != nil {
					return nil
				}
				rec.record(d, status, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec.report(time.Since(start)), nil
}

func do(ctx context.Context, client *http.Client, target string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return time.Since(start), resp.StatusCode, nil
}

func (r *recorder) report(elapsed time.Duration) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := &Report{
		Total:       r.total.Load(),
		Success:     r.success.Load(),
		Errors:      r.errors.Load(),
		Elapsed:     elapsed,
		StatusCodes: make(map[int]int64, len(r.codes)),
	}
	for code, n := range r.codes {
		rep.StatusCodes[code] = n
	}
	if len(r.latencies) == 0 {
		return rep
	}
	sorted := slices.Clone(r.latencies)
	slices.Sort(sorted)
	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	rep.Avg = sum / time.Duration(len(sorted))
	var sq float64
	for _, l := range sorted {
		diff := float64(l - rep.Avg)
		sq += diff * diff
	}
	rep.Min, rep.Max = sorted[0], sorted[len(sorted)-1]
	rep.P50 = percentile(sorted, 50)
	rep.P90 = percentile(sorted, 90)
	rep.P99 = percentile(sorted, 99)
	rep.StdDev = time.Duration(math.Sqrt(sq / float64(len(sorted))))
	return rep
}

// percentile uses the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Write prints the report in a fixed-width layout.
func (r *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "requests:   %d (%d ok, %d failed)\n", r.Total, r.Success, r.Errors)
	if secs := r.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "throughput: %.2f req/s\n", float64(r.Total)/secs)
	}
	if r.Total > 0 {
		fmt.Fprintf(w, "error rate: %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
	}
	if r.Max > 0 {
		fmt.Fprintf(w, "latency:    min %s  avg %s  p50 %s  p90 %s  p99 %s  max %s  stddev %s\n",
			r.Min, r.Avg, r.P50, r.P90, r.P99, r.Max, r.StdDev)
	}
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "status %d:  %d\n", code, r.StatusCodes[code])
	}
}
