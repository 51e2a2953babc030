package chunking

import (
	"regexp"
	"strings"
	"unicode"
)

var abbreviations = map[string]struct{}{
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "st.": {}, "jr.": {}, "sr.": {},
	"vs.": {}, "etc.": {}, "e.g.": {}, "i.e.": {}, "inc.": {}, "co.": {}, "no.": {},
}

var initialism = regexp.MustCompile(`^([A-Za-z]\.){2,}$`)

// SplitSentences splits text on sentence terminators while keeping common abbreviations
// and dotted initialisms (U.S.A.) intact.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Run of terminators ("?!", "...") ends together.
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		switch {
		case i+1 == len(runes):
			emit(i + 1)
		case unicode.IsSpace(runes[i+1]):
			if runes[i] == '.' && isAbbreviation(runes[start:i+1]) {
				continue
			}
			emit(i + 1)
		case runes[i] == '.' && missingSpace(runes, i):
			emit(i + 1)
		}
	}
	emit(len(runes))
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isAbbreviation inspects the last word of the pending sentence.
func isAbbreviation(pending []rune) bool {
	word := string(pending)
	if i := strings.LastIndexFunc(word, unicode.IsSpace); i >= 0 {
		word = word[i+1:]
	}
	word = strings.TrimLeft(word, "(\"'")
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return true
	}
	return initialism.MatchString(word)
}

// missingSpace detects "end.Next" where a sentence break lost its space.
func missingSpace(runes []rune, i int) bool {
	if i == 0 || i+2 >= len(runes) {
		return false
	}
	return unicode.IsLetter(runes[i-1]) && unicode.IsUpper(runes[i+1]) && unicode.IsLower(runes[i+2])
}

// SplitByMaxLength packs sentences into pieces of at most maxLen runes, falling back to word
// boundaries for sentences that are longer than maxLen on their own.
func SplitByMaxLength(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if maxLen <= 0 || runeLen(text) <= maxLen {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var (
		out     []string
		current string
	)
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}
	appendPiece := func(piece string) {
		switch {
		case current == "":
			current = piece
		case runeLen(current)+1+runeLen(piece) <= maxLen:
			current += " " + piece
		default:
			flush()
			current = piece
		}
	}

	for _, sentence := range SplitSentences(text) {
		if runeLen(sentence) <= maxLen {
			appendPiece(sentence)
			continue
		}
		flush()
		for _, word := range strings.Fields(sentence) {
			for runeLen(word) > maxLen {
				flush()
				r := []rune(word)
				out = append(out, string(r[:maxLen]))
				word = string(r[maxLen:])
			}
			appendPiece(word)
		}
		flush()
	}
	flush()
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
