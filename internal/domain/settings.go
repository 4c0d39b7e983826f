package domain

// MinQueryLength is the floor below which no query is executed. MinChars is
// a client-side typing threshold and does not raise it.
const MinQueryLength = 2

// Settings controls which fields and content types participate in indexing
// and search, and which display fields are filled in.
type Settings struct {
	SearchInTitle      bool `yaml:"searchInTitle" json:"search_in_title" env:"IN_TITLE"`
	SearchInContent    bool `yaml:"searchInContent" json:"search_in_content" env:"IN_CONTENT"`
	SearchInExcerpt    bool `yaml:"searchInExcerpt" json:"search_in_excerpt" env:"IN_EXCERPT"`
	SearchInSKU        bool `yaml:"searchInSku" json:"search_in_sku" env:"IN_SKU"`
	SearchInCategories bool `yaml:"searchInCategories" json:"search_in_categories" env:"IN_CATEGORIES"`
	SearchInTags       bool `yaml:"searchInTags" json:"search_in_tags" env:"IN_TAGS"`

	SearchArticles bool `yaml:"searchArticles" json:"search_articles" env:"ARTICLES"`
	SearchProducts bool `yaml:"searchProducts" json:"search_products" env:"PRODUCTS"`

	ShowImages    bool `yaml:"showImages" json:"show_images" env:"SHOW_IMAGES"`
	ShowPrice     bool `yaml:"showPrice" json:"show_price" env:"SHOW_PRICE"`
	ShowExcerpt   bool `yaml:"showExcerpt" json:"show_excerpt" env:"SHOW_EXCERPT"`
	ShowAddToCart bool `yaml:"showAddToCart" json:"show_add_to_cart" env:"SHOW_ADD_TO_CART"`

	MinChars       int `yaml:"minChars" json:"min_chars" env:"MIN_CHARS" validate:"gte=0,lte=64"`
	SearchDelayMs  int `yaml:"searchDelayMs" json:"search_delay_ms" env:"DELAY_MS" validate:"gte=0,lte=10000"`
	MaxResults     int `yaml:"maxResults" json:"max_results" env:"MAX_RESULTS" validate:"gte=1,lte=100"`
	ResultsPerType int `yaml:"resultsPerType" json:"results_per_type" env:"RESULTS_PER_TYPE" validate:"gte=0,lte=100"`
}

// DefaultSettings mirrors a fresh installation: every field and type
// searchable, add-to-cart hidden.
func DefaultSettings() Settings {
	return Settings{
		SearchInTitle:      true,
		SearchInContent:    true,
		SearchInExcerpt:    true,
		SearchInSKU:        true,
		SearchInCategories: true,
		SearchInTags:       true,
		SearchArticles:     true,
		SearchProducts:     true,
		ShowImages:         true,
		ShowPrice:          true,
		ShowExcerpt:        true,
		ShowAddToCart:      false,
		MinChars:           3,
		SearchDelayMs:      300,
		MaxResults:         10,
		ResultsPerType:     5,
	}
}

func (s Settings) TypeEnabled(ct ContentType) bool {
	switch ct {
	case ContentArticle:
		return s.SearchArticles
	case ContentProduct:
		return s.SearchProducts
	default:
		return false
	}
}

// EnabledTypes returns the enabled content types in reindex order.
func (s Settings) EnabledTypes() []ContentType {
	types := make([]ContentType, 0, len(AllContentTypes))
	for _, ct := range AllContentTypes {
		if s.TypeEnabled(ct) {
			types = append(types, ct)
		}
	}
	return types
}
