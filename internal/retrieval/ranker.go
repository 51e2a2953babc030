package retrieval

import (
	"sort"
	"strings"
	"time"
)

// Candidate is a transcript or chunk eligible for ranking. DocumentID names the owning
// transcript of a chunk and is empty for whole transcripts.
type Candidate struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id,omitempty"`
	Title         string    `json:"title"`
	Content       string    `json:"-"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	FeedbackCount int       `json:"-"`
}

// Result is a scored candidate with the excerpt selected for grounding.
type Result struct {
	Candidate Candidate      `json:"candidate"`
	Score     float64        `json:"score"`
	Excerpt   string         `json:"excerpt"`
	Category  SourceCategory `json:"category"`
}

// Scoring holds the tunable constants of the relevance formula.
type Scoring struct {
	PhraseBonus      float64
	TitleWeight      float64
	ContentWeight    float64
	RecencyBoost     float64
	RecencyWindow    time.Duration
	FeedbackBoostCap float64
	ExcerptMaxChars  int
	MaxResults       int
	Placeholders     []string
}

func DefaultScoring() Scoring {
	return Scoring{
		PhraseBonus:      50,
		TitleWeight:      5,
		ContentWeight:    1,
		RecencyBoost:     0.10,
		RecencyWindow:    30 * 24 * time.Hour,
		FeedbackBoostCap: 0.2,
		ExcerptMaxChars:  1500,
		MaxResults:       3,
		Placeholders:     []string{"PDF file uploaded"},
	}
}

type Option func(*Ranker)

// WithClock overrides the time source used for the recency boost.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) {
		if now != nil {
			r.now = now
		}
	}
}

// Ranker scores candidates against a query. It holds no mutable state and is safe for
// concurrent use.
type Ranker struct {
	scoring    Scoring
	classifier *Classifier
	now        func() time.Time
}

func NewRanker(scoring Scoring, classifier *Classifier, opts ...Option) *Ranker {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if scoring.ExcerptMaxChars <= 0 {
		scoring.ExcerptMaxChars = DefaultScoring().ExcerptMaxChars
	}
	scoring.Placeholders = append([]string(nil), scoring.Placeholders...)
	r := &Ranker{
		scoring:    scoring,
		classifier: classifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Ranker) Scoring() Scoring {
	return r.scoring
}

func (r *Ranker) Classifier() *Classifier {
	return r.classifier
}

// query is the per-call view of the user's question.
type query struct {
	lowered  string
	keywords []string
	category SourceCategory
	hasCat   bool
	now      time.Time
}

func (r *Ranker) prepare(q string) query {
	lowered := strings.ToLower(strings.TrimSpace(q))
	cat, ok := r.classifier.MatchQuery(lowered)
	return query{
		lowered:  lowered,
		keywords: ExtractKeywords(lowered),
		category: cat,
		hasCat:   ok,
		now:      r.now(),
	}
}

// Rank scores candidates and returns those with a positive score in descending order, each with
// an excerpt. It returns nil when nothing matches.
func (r *Ranker) Rank(q string, candidates []Candidate) []Result {
	pq := r.prepare(q)
	results := r.rankAll(pq, candidates)
	if len(results) == 0 {
		return nil
	}
	results = r.limit(results)
	for i := range results {
		results[i].Excerpt = r.excerpt(pq, results[i].Candidate.Content)
		results[i].Category = r.categoryOf(results[i].Candidate)
	}
	return results
}

func (r *Ranker) rankAll(pq query, candidates []Candidate) []Result {
	if len(candidates) == 0 || pq.lowered == "" {
		return nil
	}
	var results []Result
	for _, c := range candidates {
		if !r.Eligible(c) {
			continue
		}
		score := r.score(pq, c)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Candidate: c, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Merge combines already ranked lists, for example chunk hits and whole transcripts that have not
// been chunked yet, into one list ordered by score and cut to MaxResults.
func (r *Ranker) Merge(lists ...[]Result) []Result {
	var out []Result
	for _, l := range lists {
		out = append(out, l...)
	}
	if len(out) == 0 {
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return r.limit(out)
}

func (r *Ranker) limit(results []Result) []Result {
	if r.scoring.MaxResults > 0 && len(results) > r.scoring.MaxResults {
		return results[:r.scoring.MaxResults]
	}
	return results
}

// Score returns the relevance score of a single candidate; ineligible candidates score zero.
func (r *Ranker) Score(q string, c Candidate) float64 {
	if !r.Eligible(c) {
		return 0
	}
	pq := r.prepare(q)
	if pq.lowered == "" {
		return 0
	}
	return r.score(pq, c)
}

// Eligible reports whether a candidate has real content to score.
func (r *Ranker) Eligible(c Candidate) bool {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return false
	}
	for _, p := range r.scoring.Placeholders {
		if strings.EqualFold(content, strings.TrimSpace(p)) {
			return false
		}
	}
	return true
}

func (r *Ranker) score(pq query, c Candidate) float64 {
	s := textScore(pq, c.Content, r.scoring.PhraseBonus, r.scoring.ContentWeight)
	for _, kw := range pq.keywords {
		s += r.scoring.TitleWeight * float64(CountWholeWord(c.Title, kw))
	}
	if s <= 0 {
		return 0
	}

	if pq.hasCat && r.inCategory(c, pq.category) {
		s *= pq.category.Weight
	}
	if r.isRecent(c.CreatedAt, pq.now) {
		s *= 1 + r.scoring.RecencyBoost
	}
	if c.FeedbackCount > 0 && r.scoring.FeedbackBoostCap > 0 {
		boost := float64(c.FeedbackCount) / 10
		if boost > r.scoring.FeedbackBoostCap {
			boost = r.scoring.FeedbackBoostCap
		}
		s *= 1 + boost
	}
	return s
}

// textScore is the phrase bonus plus weighted keyword frequency over a body of text.
func textScore(pq query, text string, phraseBonus, weight float64) float64 {
	s := 0.0
	if pq.lowered != "" && strings.Contains(strings.ToLower(text), pq.lowered) {
		s += phraseBonus
	}
	for _, kw := range pq.keywords {
		s += weight * float64(CountWholeWord(text, kw))
	}
	return s
}

func (r *Ranker) inCategory(c Candidate, cat SourceCategory) bool {
	if c.Source != "" && c.Source == cat.ID {
		return true
	}
	return keywordHits(strings.ToLower(c.Title+" "+c.Content), cat.Keywords) > 0
}

func (r *Ranker) isRecent(createdAt, now time.Time) bool {
	if createdAt.IsZero() || r.scoring.RecencyBoost <= 0 {
		return false
	}
	return now.Sub(createdAt) <= r.scoring.RecencyWindow
}

func (r *Ranker) categoryOf(c Candidate) SourceCategory {
	if cat, ok := r.classifier.catalog.Lookup(c.Source); ok {
		return cat
	}
	return r.classifier.Classify(c.Title, c.Content)
}
