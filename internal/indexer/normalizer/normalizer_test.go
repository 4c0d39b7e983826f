package normalizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(opts ...Option) *Normalizer {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func price(v float64) *float64 { return &v }

func sampleProduct() *domain.RawItem {
	return &domain.RawItem{
		ID:         "p-1",
		Type:       "product",
		Status:     domain.StatusPublished,
		Title:      "  Red Shoes ",
		Content:    "<p>Comfortable <b>leather</b> shoes</p>",
		Excerpt:    "<em>Great</em> shoes",
		Categories: []string{"Footwear", "Sale"},
		Tags:       []string{"red"},
		Meta: map[string]string{
			"_use_cases":        "running",
			"_product_benefits": "<i>durable</i>",
			"_custom_keywords":  "",
			FocusKeywordKey:     "red shoes",
		},
		Product: &domain.ProductData{
			SKU:              "SH-RED-1",
			Price:            price(59.9),
			InStock:          true,
			ShortDescription: "<p>Hand made</p>",
			Attributes: []domain.Attribute{
				{Name: "pa_color", Taxonomy: true, Terms: []string{"Crimson"}},
				{Name: "Material", Options: []string{"Leather", "Rubber"}},
			},
		},
	}
}

func TestNormalize_Product(t *testing.T) {
	rec, err := newTestNormalizer().Normalize(context.Background(), sampleProduct(), domain.DefaultSettings())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "p-1", rec.SourceID)
	assert.Equal(t, domain.ContentProduct, rec.ContentType)
	assert.Equal(t, "Red Shoes", rec.Title)
	assert.Equal(t, "Comfortable leather shoes Hand made durable running", rec.Body)
	assert.Equal(t, "Great shoes", rec.Excerpt)
	assert.Equal(t, "SH-RED-1", rec.SKU)
	assert.Equal(t, "Footwear, Sale", rec.Categories)
	assert.Equal(t, "red, Crimson, Leather, Rubber, red shoes", rec.Tags)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 59.9, *rec.Price, 1e-9)
	require.NotNil(t, rec.InStock)
	assert.True(t, *rec.InStock)
	assert.Equal(t, fixedNow, rec.IndexedAt)
	assert.InDelta(t, BaseScore(rec.Title, rec.Body), rec.RelevanceBaseScore, 1e-9)
}

func TestNormalize_ArticleHasNoProductFields(t *testing.T) {
	item := &domain.RawItem{
		ID:      "a-1",
		Type:    "post",
		Status:  domain.StatusPublished,
		Title:   "Red Shoes Review",
		Content: "We tried them.",
	}
	rec, err := newTestNormalizer().Normalize(context.Background(), item, domain.DefaultSettings())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, domain.ContentArticle, rec.ContentType)
	assert.Empty(t, rec.SKU)
	assert.Nil(t, rec.Price)
	assert.Nil(t, rec.InStock)
	assert.Empty(t, rec.Tags)
	assert.Empty(t, rec.Categories)
}

func TestNormalize_Skips(t *testing.T) {
	productsOff := domain.DefaultSettings()
	productsOff.SearchProducts = false

	tests := []struct {
		name   string
		mutate func(*domain.RawItem)
		policy domain.Settings
	}{
		{"draft", func(i *domain.RawItem) { i.Status = "draft" }, domain.DefaultSettings()},
		{"revision", func(i *domain.RawItem) { i.IsRevision = true }, domain.DefaultSettings()},
		{"autosave", func(i *domain.RawItem) { i.IsAutosave = true }, domain.DefaultSettings()},
		{"unsupported type", func(i *domain.RawItem) { i.Type = "page" }, domain.DefaultSettings()},
		{"type disabled", func(i *domain.RawItem) {}, productsOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := sampleProduct()
			tt.mutate(item)
			rec, err := newTestNormalizer().Normalize(context.Background(), item, tt.policy)
			assert.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestNormalize_EmptyTitleRejected(t *testing.T) {
	item := sampleProduct()
	item.Title = "   "

	rec, err := newTestNormalizer().Normalize(context.Background(), item, domain.DefaultSettings())
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNormalization)
}

type fakeResolver struct {
	terms map[string][]string
	err   error
}

func (f fakeResolver) ResolveTerms(_ context.Context, _, taxonomy string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.terms[taxonomy], nil
}

func TestNormalize_ResolvesTaxonomyAttributes(t *testing.T) {
	item := sampleProduct()
	item.Meta = nil
	item.Product.Attributes = []domain.Attribute{{Name: "pa_size", Taxonomy: true}}

	n := newTestNormalizer(WithTermResolver(fakeResolver{terms: map[string][]string{"pa_size": {"42", "43"}}}))
	rec, err := n.Normalize(context.Background(), item, domain.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "red, 42, 43", rec.Tags)
}

func TestNormalize_AttributeFailureIsNotFatal(t *testing.T) {
	item := sampleProduct()
	item.Product.Attributes = []domain.Attribute{
		{Name: "pa_size", Taxonomy: true},
		{Taxonomy: true},
		{Name: "Material", Options: []string{"Canvas"}},
	}

	n := newTestNormalizer(WithTermResolver(fakeResolver{err: errors.New("taxonomy service down")}))
	rec, err := n.Normalize(context.Background(), item, domain.DefaultSettings())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "red, Canvas, red shoes", rec.Tags)
}

func TestBaseScore(t *testing.T) {
	assert.InDelta(t, 9.5, BaseScore("Red Shoes", string(make([]byte, 50))), 1e-9)
}
