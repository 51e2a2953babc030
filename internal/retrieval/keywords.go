package retrieval

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StopWords are dropped from queries before scoring.
var StopWords = []string{
	"what", "when", "where", "which", "who", "whom", "does", "this", "that", "these", "those",
	"with", "about", "from", "have", "will", "would", "could", "should", "their", "there",
	"they", "them", "then", "than", "your", "into", "been", "were", "being", "some",
	"and", "the", "for", "are", "how", "why", "can", "you",
}

// DomainTerms are business acquisition terms that are always kept when present in a query,
// even if they are short or would otherwise be filtered.
var DomainTerms = []string{
	"acquisition", "acquisitions", "acquire", "ebitda", "sde", "due diligence",
	"seller financing", "seller note", "sba", "loi", "letter of intent", "valuation",
	"multiple", "cash flow", "working capital", "earnout", "earn-out", "broker",
	"deal", "deal structure", "closing", "equity", "debt", "financing", "roi", "exit",
	"buyer", "seller", "revenue", "profit", "margin", "business",
}

var stopWordSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(StopWords))
	for _, w := range StopWords {
		m[w] = struct{}{}
	}
	return m
}()

// ExtractKeywords returns the lowercase, deduplicated search terms of query in order of first
// appearance. Plain tokens must be longer than three characters and not stop words; domain terms
// are added whenever they occur in the query as whole words.
func ExtractKeywords(query string) []string {
	lowered := strings.ToLower(query)
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	for _, raw := range strings.Fields(lowered) {
		token := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(token)) <= 3 {
			continue
		}
		if _, stop := stopWordSet[token]; stop {
			continue
		}
		add(token)
	}

	for _, term := range DomainTerms {
		if CountWholeWord(lowered, term) > 0 {
			add(term)
		}
	}
	return out
}

const maxWordPatterns = 4096

var wordPatterns, _ = lru.New[string, *regexp.Regexp](maxWordPatterns)

// wordPattern compiles a case-insensitive matcher for term and memoizes it. Word boundaries are
// checked by CountWholeWord because \b only knows ASCII word characters.
func wordPattern(term string) *regexp.Regexp {
	if re, ok := wordPatterns.Get(term); ok {
		return re
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	wordPatterns.Add(term, re)
	return re
}

// CountWholeWord counts case-insensitive whole-word occurrences of term in text. A match only
// counts when the runes around it are not letters, digits or underscores.
func CountWholeWord(text, term string) int {
	term = strings.TrimSpace(term)
	if term == "" || text == "" {
		return 0
	}
	re := wordPattern(term)
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	checkBefore, checkAfter := isWordRune(first), isWordRune(last)

	n := 0
	for start := 0; start < len(text); {
		loc := re.FindStringIndex(text[start:])
		if loc == nil {
			break
		}
		from, to := start+loc[0], start+loc[1]
		if (!checkBefore || !wordBefore(text, from)) && (!checkAfter || !wordAfter(text, to)) {
			n++
			start = to
			continue
		}
		_, size := utf8.DecodeRuneInString(text[from:])
		start = from + size
	}
	return n
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWordRune(r)
}

func wordAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isWordRune(r)
}
