package domain

import "time"

// IndexRecord is the normalized, searchable form of one content item.
// There is at most one record per SourceID.
type IndexRecord struct {
	SourceID           string      `json:"source_id"`
	ContentType        ContentType `json:"content_type"`
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Excerpt            string      `json:"excerpt"`
	SKU                string      `json:"sku,omitempty"`
	Categories         string      `json:"categories"`
	Tags               string      `json:"tags"`
	Price              *float64    `json:"price,omitempty"`
	InStock            *bool       `json:"in_stock,omitempty"`
	RelevanceBaseScore float64     `json:"relevance_base_score"`
	IndexedAt          time.Time   `json:"indexed_at"`
}

// ScoredResult is a candidate record enriched with its score and the
// display fields the transport layer renders.
type ScoredResult struct {
	ID           string      `json:"id"`
	Type         ContentType `json:"type"`
	Title        string      `json:"title"`
	Score        float64     `json:"score"`
	Excerpt      string      `json:"excerpt,omitempty"`
	URL          string      `json:"url"`
	Image        string      `json:"image,omitempty"`
	Date         time.Time   `json:"date"`
	Author       string      `json:"author,omitempty"`
	Price        string      `json:"price,omitempty"`
	Purchasable  bool        `json:"purchasable,omitempty"`
	AddToCart    bool        `json:"add_to_cart,omitempty"`
	AddToCartURL string      `json:"add_to_cart_url,omitempty"`
	InStock      *bool       `json:"in_stock,omitempty"`
}

// GroupedResults partitions a result list by content type.
type GroupedResults struct {
	Products []ScoredResult `json:"products"`
	Articles []ScoredResult `json:"articles"`
	Total    int            `json:"total"`
}
