package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		words []string
	}{
		{"simple", "red shoes", "red shoes", []string{"red", "shoes"}},
		{"surrounding whitespace", "  red   shoes \t", "red   shoes", []string{"red", "shoes"}},
		{"empty", "   ", "", []string{}},
		{"single word", "boots", "boots", []string{"boots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.query, plan.RawQuery)
			assert.Equal(t, tt.want, plan.Query)
			assert.ElementsMatch(t, tt.words, plan.Words)
		})
	}
}

func TestTooShort(t *testing.T) {
	assert.True(t, Parse("a").TooShort(2))
	assert.True(t, Parse("  ").TooShort(2))
	assert.False(t, Parse("ab").TooShort(2))
	assert.True(t, Parse("ab").TooShort(3))
	assert.False(t, Parse("çé").TooShort(2))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "red shoes", Parse("  Red SHOES ").CacheKey())
	assert.Equal(t, "red  shoes", Parse("Red  Shoes").CacheKey())
}
