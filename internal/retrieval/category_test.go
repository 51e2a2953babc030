package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFoundationsCall(t *testing.T) {
	c := NewClassifier(DefaultCatalog())

	got := c.Classify("Foundations Call with Carl", "basics for beginners")

	assert.Equal(t, CategoryFoundationsCall, got.ID)
}

func TestClassifyFallsBackToDefault(t *testing.T) {
	c := NewClassifier(nil)

	got := c.Classify("Weekly notes", "nothing relevant here")

	assert.Equal(t, CategoryOther, got.ID)
}

func TestClassifyWeightedCount(t *testing.T) {
	catalog := NewCatalog("none",
		SourceCategory{ID: "light", Keywords: []string{"alpha"}, Weight: 1},
		SourceCategory{ID: "heavy", Keywords: []string{"beta"}, Weight: 3},
	)
	c := NewClassifier(catalog)

	assert.Equal(t, "heavy", c.Classify("alpha alpha", "beta").ID)
	// Unknown default id falls back to the first category.
	assert.Equal(t, "light", c.Classify("", "gamma").ID)
}

func TestClassifyTieGoesToFirstDeclared(t *testing.T) {
	catalog := NewCatalog("first",
		SourceCategory{ID: "first", Keywords: []string{"alpha"}, Weight: 2},
		SourceCategory{ID: "second", Keywords: []string{"beta"}, Weight: 2},
	)
	c := NewClassifier(catalog)

	assert.Equal(t, "first", c.Classify("alpha", "beta").ID)
}

func TestMatchQuery(t *testing.T) {
	c := NewClassifier(DefaultCatalog())

	cat, ok := c.MatchQuery("Tell me about seller financing")
	require.True(t, ok)
	assert.Equal(t, CategoryCreativeDeal, cat.ID)

	_, ok = c.MatchQuery("what is a good valuation")
	assert.False(t, ok)
}

func TestCatalogIsolatedFromCaller(t *testing.T) {
	keywords := []string{"Alpha"}
	catalog := NewCatalog("a", SourceCategory{ID: "a", Keywords: keywords})
	keywords[0] = "changed"

	cat, ok := catalog.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, []string{"alpha"}, cat.Keywords)
	assert.Equal(t, 1.0, cat.Weight)

	cats := catalog.Categories()
	cats[0].ID = "mutated"
	again, _ := catalog.Lookup("a")
	assert.Equal(t, "a", again.ID)
}
