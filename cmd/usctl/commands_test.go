package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `[
  {"id": "p-1", "type": "product", "status": "publish", "title": "Red Shoes", "content": "Leather", "product": {"price": 59.99, "currency": "USD", "in_stock": true}},
  {"id": "a-1", "type": "post", "status": "publish", "title": "Caring for red shoes", "content": "Polish weekly"},
  {"id": "a-2", "type": "post", "status": "draft", "title": "Unfinished shoes post"}
]`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	t.Setenv("US_CMS_SEED_FILE", path)
	t.Setenv("US_LOGGING_LEVEL", "error")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReindex(t *testing.T) {
	out, err := run(t, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 items")
}

func TestSearch(t *testing.T) {
	out, err := run(t, "--reindex-first", "search", "red", "shoes")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Red Shoes (product, p-1) score=100 $59.99")
	assert.Contains(t, out, "[2] Caring for red shoes (article, a-1) score=80")
}

func TestSearch_Grouped(t *testing.T) {
	out, err := run(t, "--reindex-first", "search", "--grouped", "--limit", "1", "shoes")
	require.NoError(t, err)
	assert.Contains(t, out, "Products:")
	assert.Contains(t, out, "Articles:")
}

func TestSearch_JSON(t *testing.T) {
	out, err := run(t, "--reindex-first", "search", "--json", "nonexistentterm")
	require.NoError(t, err)
	assert.Contains(t, out, "[]")
}

func TestEventAndCount(t *testing.T) {
	out, err := run(t, "event", "publish", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "publish p-1: indexed")

	_, err = run(t, "event", "trash", "p-1")
	assert.Error(t, err)

	out, err = run(t, "--reindex-first", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "2 records")

	out, err = run(t, "--reindex-first", "count", "--type", "post")
	require.NoError(t, err)
	assert.Contains(t, out, "1 article records")

	_, err = run(t, "count", "--type", "page")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	out, err := run(t, "delete", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted p-1")
}

func TestCachePurge_Disabled(t *testing.T) {
	_, err := run(t, "cache", "purge")
	assert.ErrorContains(t, err, "caching is disabled")
}

func TestLoadtest_SkipsLocalApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()
	t.Setenv("US_STORE_DRIVER", "bogus")

	out, err := run(t, "loadtest", "--url", srv.URL, "--requests", "4", "--concurrency", "2", "-q", "shoes")
	require.NoError(t, err)
	assert.Contains(t, out, "requests:   4 (4 ok, 0 failed)")
	assert.Contains(t, out, "status 200:  4")
}
