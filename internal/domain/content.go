// Package domain holds the types shared by the indexing and search paths:
// raw source items, normalized index records, scored results and the
// settings that decide which fields and content types participate.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContentType discriminates the two kinds of indexed content.
type ContentType string

const (
	ContentArticle ContentType = "article"
	ContentProduct ContentType = "product"
)

// AllContentTypes lists every indexable type in reindex order.
var AllContentTypes = []ContentType{ContentProduct, ContentArticle}

func (c ContentType) Valid() bool {
	return c == ContentArticle || c == ContentProduct
}

func (c ContentType) String() string {
	return string(c)
}

// ParseContentType accepts the canonical names plus the CMS aliases "post"
// for articles.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "article", "post":
		return ContentArticle, nil
	case "product":
		return ContentProduct, nil
	default:
		return "", fmt.Errorf("unknown content type %q", s)
	}
}

// StatusPublished is the only lifecycle state that may be indexed.
const StatusPublished = "publish"

// RawItem is a content item as delivered by the CMS.
type RawItem struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Excerpt     string            `json:"excerpt"`
	IsRevision  bool              `json:"is_revision"`
	IsAutosave  bool              `json:"is_autosave"`
	Categories  []string          `json:"categories"`
	Tags        []string          `json:"tags"`
	Author      string            `json:"author"`
	PublishedAt time.Time         `json:"published_at"`
	URL         string            `json:"url"`
	ImageURL    string            `json:"image_url"`
	Meta        map[string]string `json:"meta"`
	Product     *ProductData      `json:"product,omitempty"`
}

// Published reports whether the item is in the publicly visible state.
func (r *RawItem) Published() bool {
	return r != nil && r.Status == StatusPublished && !r.IsRevision && !r.IsAutosave
}

// ProductData carries the commerce-specific part of a product item.
type ProductData struct {
	SKU              string      `json:"sku"`
	Price            *float64    `json:"price,omitempty"`
	Currency         string      `json:"currency"`
	InStock          bool        `json:"in_stock"`
	Purchasable      bool        `json:"purchasable"`
	ShortDescription string      `json:"short_description"`
	AddToCartURL     string      `json:"add_to_cart_url"`
	Attributes       []Attribute `json:"attributes"`
}

// Attribute is a product attribute. Taxonomy-backed attributes carry their
// resolved term names in Terms; free-form attributes carry raw Options.
type Attribute struct {
	Name     string   `json:"name"`
	Taxonomy bool     `json:"taxonomy"`
	Terms    []string `json:"terms,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// LifecycleEvent names a CMS notification the indexer reacts to.
type LifecycleEvent string

const (
	EventPublish LifecycleEvent = "publish"
	EventUpdate  LifecycleEvent = "update"
	EventDelete  LifecycleEvent = "delete"
)

func ParseLifecycleEvent(s string) (LifecycleEvent, error) {
	switch ev := LifecycleEvent(strings.ToLower(strings.TrimSpace(s))); ev {
	case EventPublish, EventUpdate, EventDelete:
		return ev, nil
	default:
		return "", fmt.Errorf("unknown lifecycle event %q", s)
	}
}
