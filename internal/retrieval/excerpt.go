package retrieval

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "..."

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits text on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Excerpt selects the part of content most relevant to the query, bounded by the configured
// excerpt length.
func (r *Ranker) Excerpt(q, content string) string {
	return r.excerpt(r.prepare(q), content)
}

func (r *Ranker) excerpt(pq query, content string) string {
	content = strings.TrimSpace(content)
	limit := r.scoring.ExcerptMaxChars
	if utf8.RuneCountInString(content) <= limit {
		return content
	}

	paras := SplitParagraphs(content)
	best, bestScore := -1, 0.0
	for i, p := range paras {
		if s := textScore(pq, p, r.scoring.PhraseBonus, r.scoring.ContentWeight); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return truncateAtWord(content, limit)
	}

	lo, hi := excerptWindow(best, len(paras))
	text := strings.Join(paras[lo:hi+1], "\n\n")
	for utf8.RuneCountInString(text) > limit && lo < best {
		lo++
		text = strings.Join(paras[lo:hi+1], "\n\n")
	}
	if utf8.RuneCountInString(paras[best]) > limit {
		return r.focusSentence(pq, paras[best], limit)
	}
	if utf8.RuneCountInString(text) > limit {
		text = truncateAtSentence(text, limit)
	}
	return text
}

// focusSentence handles a paragraph longer than limit: the window starts at the best scoring
// sentence, or the one before it when both fit, and ends at the last sentence that fits.
func (r *Ranker) focusSentence(pq query, para string, limit int) string {
	runes := []rune(para)
	starts := sentenceStarts(runes)
	best, bestScore := -1, 0.0
	for i, from := range starts {
		to := len(runes)
		if i+1 < len(starts) {
			to = starts[i+1]
		}
		if s := textScore(pq, string(runes[from:to]), r.scoring.PhraseBonus, r.scoring.ContentWeight); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return truncateAtSentence(para, limit)
	}

	from := starts[best]
	if best > 0 {
		end := len(runes)
		if best+1 < len(starts) {
			end = starts[best+1]
		}
		if end-starts[best-1] <= limit {
			from = starts[best-1]
		}
	}
	return truncateAtSentence(strings.TrimSpace(string(runes[from:])), limit)
}

// sentenceStarts returns the rune offsets where sentences of text begin.
func sentenceStarts(runes []rune) []int {
	starts := []int{0}
	for i := 0; i < len(runes)-1; i++ {
		if !isSentenceEnd(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < len(runes) {
			starts = append(starts, j)
		}
		i = j - 1
	}
	return starts
}

// excerptWindow widens the best paragraph by two neighbours, favouring trailing context at the
// start of a document and leading context at its end.
func excerptWindow(best, n int) (int, int) {
	switch {
	case n <= 1:
		return 0, 0
	case best == 0:
		return 0, min(2, n-1)
	case best == n-1:
		return max(0, n-3), n - 1
	default:
		return best - 1, best + 1
	}
}

// truncateAtSentence cuts text after the last sentence terminator that fits in limit runes.
func truncateAtSentence(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := -1
	for i := 0; i < limit; i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			cut = i
		}
	}
	if cut < 0 {
		return truncateAtWord(text, limit)
	}
	return string(runes[:cut+1])
}

// truncateAtWord cuts text at the last word boundary that leaves room for an ellipsis.
func truncateAtWord(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	keep := limit - len(ellipsis)
	if keep <= 0 {
		return string(runes[:limit])
	}
	cut := keep
	for i := keep; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + ellipsis
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
