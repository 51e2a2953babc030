package chunking

import "math"

const (
	tokensPerChar       = 0.25
	embeddingCostPer1K  = 0.0001
	recommendedMaxChars = 2000
)

// Quality summarizes chunk length statistics and flags likely chunking problems.
type Quality struct {
	ChunkCount     int      `json:"chunk_count"`
	AvgLength      float64  `json:"avg_chunk_length"`
	MinLength      int      `json:"min_chunk_length"`
	MaxLength      int      `json:"max_chunk_length"`
	StdDev         float64  `json:"chunk_length_std"`
	PossibleIssues []string `json:"possible_issues"`
}

func Analyze(chunks []string) Quality {
	if len(chunks) == 0 {
		return Quality{PossibleIssues: []string{"No chunks found"}}
	}

	q := Quality{ChunkCount: len(chunks), MinLength: math.MaxInt, PossibleIssues: []string{}}
	total := 0
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		n := runeLen(c)
		lengths[i] = n
		total += n
		q.MinLength = min(q.MinLength, n)
		q.MaxLength = max(q.MaxLength, n)
	}
	q.AvgLength = float64(total) / float64(len(chunks))

	var variance float64
	for _, n := range lengths {
		d := float64(n) - q.AvgLength
		variance += d * d
	}
	q.StdDev = math.Sqrt(variance / float64(len(chunks)))

	if q.AvgLength > 0 && q.StdDev/q.AvgLength > 0.5 {
		q.PossibleIssues = append(q.PossibleIssues, "High variability in chunk lengths")
	}
	if float64(q.MinLength) < q.AvgLength*0.3 {
		q.PossibleIssues = append(q.PossibleIssues, "Some chunks are very small")
	}
	if q.MaxLength > recommendedMaxChars {
		q.PossibleIssues = append(q.PossibleIssues, "Some chunks exceed recommended size (>2000 chars)")
	}
	if len(chunks) < 2 {
		q.PossibleIssues = append(q.PossibleIssues, "Too few chunks for effective retrieval")
	}
	return q
}

// TokenEstimate is a rough embedding cost projection at about four characters per token.
type TokenEstimate struct {
	ChunkCount      int     `json:"chunk_count"`
	TotalCharacters int     `json:"total_characters"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedCost   float64 `json:"estimated_cost_usd"`
}

func EstimateTokens(chunks []string) TokenEstimate {
	chars := 0
	for _, c := range chunks {
		chars += runeLen(c)
	}
	tokens := int(float64(chars) * tokensPerChar)
	return TokenEstimate{
		ChunkCount:      len(chunks),
		TotalCharacters: chars,
		EstimatedTokens: tokens,
		EstimatedCost:   float64(tokens) / 1000 * embeddingCostPer1K,
	}
}
