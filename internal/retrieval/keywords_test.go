package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "drops stop words and short tokens",
			query: "What is the EBITDA multiple for this business?",
			want:  []string{"ebitda", "multiple", "business"},
		},
		{
			name:  "keeps short domain terms",
			query: "How does an SBA loan work?",
			want:  []string{"loan", "work", "sba"},
		},
		{
			name:  "adds multi word domain terms",
			query: "seller financing options",
			want:  []string{"seller", "financing", "options", "seller financing"},
		},
		{
			name:  "deduplicates",
			query: "deal Deal DEAL",
			want:  []string{"deal"},
		},
		{
			name:  "only stop words",
			query: "the and for are",
			want:  nil,
		},
		{
			name:  "empty",
			query: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.query))
		})
	}
}

func TestCountWholeWord(t *testing.T) {
	assert.Equal(t, 2, CountWholeWord("Dealmaker deal DEAL deals", "deal"))
	assert.Equal(t, 1, CountWholeWord("we talked seller financing today", "seller financing"))
	assert.Equal(t, 0, CountWholeWord("seller. Financing", "seller financing"))
	assert.Equal(t, 0, CountWholeWord("", "deal"))
	assert.Equal(t, 0, CountWholeWord("deal", " "))
}

func TestCountWholeWordNonASCII(t *testing.T) {
	assert.Equal(t, 1, CountWholeWord("my résumé review", "résumé"))
	assert.Equal(t, 3, CountWholeWord("the café deal, CAFÉ café-owner", "café"))
	assert.Equal(t, 0, CountWholeWord("cafés and cafeteria", "café"))
	assert.Equal(t, 0, CountWholeWord("décafé", "café"))
	assert.Equal(t, 2, CountWholeWord("café café", "café"))
}

func TestRankMatchesNonASCIIKeywords(t *testing.T) {
	r := newTestRanker()
	results := r.Rank("café valuation tips", []Candidate{{
		ID:      "1",
		Title:   "Buying a café",
		Content: "We bought a café last year.",
	}})

	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].Candidate.ID)
}
