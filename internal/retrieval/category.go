package retrieval

import "strings"

const (
	CategoryProtegeCall     = "protege_call"
	CategoryFoundationsCall = "foundations_call"
	CategoryCreativeDeal    = "creative_dealmaker"
	CategoryMastermindCall  = "mastermind_call"
	CategorySummit          = "business_acquisitions_summit"
	CategoryCaseStudy       = "case_study"
	CategoryWeb             = "web"
	CategoryOther           = "other"
)

// SourceCategory labels the collection a transcript belongs to.
type SourceCategory struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Weight      float64  `json:"weight"`
}

// Catalog is an ordered, read-only set of source categories. Declaration order breaks ties.
type Catalog struct {
	categories []SourceCategory
	byID       map[string]int
	defaultID  string
}

// NewCatalog copies categories so later mutation by the caller cannot leak in.
// defaultID must name one of the categories; otherwise the first category is the default.
func NewCatalog(defaultID string, categories ...SourceCategory) *Catalog {
	c := &Catalog{
		categories: make([]SourceCategory, len(categories)),
		byID:       make(map[string]int, len(categories)),
	}
	for i, cat := range categories {
		cat.Keywords = append([]string(nil), cat.Keywords...)
		for j := range cat.Keywords {
			cat.Keywords[j] = strings.ToLower(strings.TrimSpace(cat.Keywords[j]))
		}
		if cat.Weight <= 0 {
			cat.Weight = 1
		}
		c.categories[i] = cat
		c.byID[cat.ID] = i
	}
	c.defaultID = defaultID
	if _, ok := c.byID[defaultID]; !ok && len(categories) > 0 {
		c.defaultID = categories[0].ID
	}
	return c
}

// DefaultCatalog returns the business acquisition source categories.
func DefaultCatalog() *Catalog {
	return NewCatalog(CategoryOther,
		SourceCategory{
			ID:          CategoryProtegeCall,
			Label:       "Protege Call",
			Description: "Private coaching calls with protege program members",
			Keywords:    []string{"protege", "coaching", "mentor", "mentorship", "student"},
			Weight:      1.2,
		},
		SourceCategory{
			ID:          CategoryFoundationsCall,
			Label:       "Foundations Call",
			Description: "Introductory calls covering acquisition fundamentals",
			Keywords:    []string{"foundations", "call", "basics", "learning", "beginners"},
			Weight:      1.1,
		},
		SourceCategory{
			ID:          CategoryCreativeDeal,
			Label:       "Creative Dealmaker",
			Description: "Sessions on creative deal structuring and financing",
			Keywords:    []string{"creative", "dealmaker", "deal structure", "seller financing", "earnout", "creative financing"},
			Weight:      1.3,
		},
		SourceCategory{
			ID:          CategoryMastermindCall,
			Label:       "Mastermind Call",
			Description: "Peer mastermind group discussions",
			Keywords:    []string{"mastermind", "peer", "hot seat", "accountability"},
			Weight:      1.15,
		},
		SourceCategory{
			ID:          CategorySummit,
			Label:       "Business Acquisitions Summit",
			Description: "Talks and panels from the business acquisitions summit",
			Keywords:    []string{"summit", "business acquisitions", "conference", "keynote", "panel"},
			Weight:      1.25,
		},
		SourceCategory{
			ID:          CategoryCaseStudy,
			Label:       "Case Study",
			Description: "Walkthroughs of real acquisitions and closed deals",
			Keywords:    []string{"case study", "success story", "closed deal", "walkthrough"},
			Weight:      1.2,
		},
		SourceCategory{
			ID:          CategoryWeb,
			Label:       "Web",
			Description: "Articles and pages collected from the web",
			Keywords:    []string{"website", "article", "blog", "online"},
			Weight:      0.8,
		},
		SourceCategory{
			ID:          CategoryOther,
			Label:       "Other",
			Description: "Uncategorized material",
			Weight:      1,
		},
	)
}

// Categories returns a copy of the categories in declaration order.
func (c *Catalog) Categories() []SourceCategory {
	out := make([]SourceCategory, len(c.categories))
	copy(out, c.categories)
	return out
}

// Lookup returns the category with the given id.
func (c *Catalog) Lookup(id string) (SourceCategory, bool) {
	i, ok := c.byID[id]
	if !ok {
		return SourceCategory{}, false
	}
	return c.categories[i], true
}

// Default returns the fallback category.
func (c *Catalog) Default() SourceCategory {
	cat, _ := c.Lookup(c.defaultID)
	return cat
}

// Classifier maps free text to the best matching source category.
type Classifier struct {
	catalog *Catalog
}

func NewClassifier(catalog *Catalog) *Classifier {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Classifier{catalog: catalog}
}

func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// Classify returns the category whose weighted keyword count over title and content is highest,
// or the catalog default when nothing matches.
func (c *Classifier) Classify(title, content string) SourceCategory {
	cat, ok := c.best(strings.ToLower(title + " " + content))
	if !ok {
		return c.catalog.Default()
	}
	return cat
}

// MatchQuery reports the category a query refers to, if any of its keywords appear in it.
func (c *Classifier) MatchQuery(query string) (SourceCategory, bool) {
	return c.best(strings.ToLower(query))
}

func (c *Classifier) best(text string) (SourceCategory, bool) {
	var (
		bestCat   SourceCategory
		bestScore float64
		found     bool
	)
	for _, cat := range c.catalog.categories {
		count := keywordHits(text, cat.Keywords)
		if count == 0 {
			continue
		}
		score := float64(count) * cat.Weight
		if !found || score > bestScore {
			bestCat, bestScore, found = cat, score, true
		}
	}
	return bestCat, found
}

func keywordHits(text string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		total += CountWholeWord(text, kw)
	}
	return total
}
