package categorical

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mwiater/stochprobe/internal/harness"
)

// Invalid is the label of responses that do not name exactly one category.
const Invalid = harness.InvalidSentinel

// Normalizer maps free text onto a fixed alphabet.
type Normalizer struct {
	alphabet []string
	token    *regexp.Regexp
}

// NewNormalizer builds a normalizer for alphabet. Labels are compared in upper case.
func NewNormalizer(alphabet []string) *Normalizer {
	labels := make([]string, len(alphabet))
	for i, a := range alphabet {
		labels[i] = strings.ToUpper(strings.TrimSpace(a))
	}
	// Longer labels first so a label never shadows one it prefixes.
	byLength := slices.Clone(labels)
	slices.SortStableFunc(byLength, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	quoted := make([]string, len(byLength))
	for i, l := range byLength {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return &Normalizer{
		alphabet: labels,
		token:    regexp.MustCompile(strings.Join(quoted, "|")),
	}
}

// Alphabet returns the normalised labels in declaration order.
func (n *Normalizer) Alphabet() []string { return slices.Clone(n.alphabet) }

// Normalize returns the single label named by text, or Invalid. An exact
// match wins; otherwise exactly one isolated label token must occur.
func (n *Normalizer) Normalize(text string) string {
	if text == harness.ErrorSentinel {
		return Invalid
	}
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" {
		return Invalid
	}
	if slices.Contains(n.alphabet, s) {
		return s
	}
	var found []string
	for _, loc := range n.token.FindAllStringIndex(s, -1) {
		if isolated(s, loc[0], loc[1]) {
			found = append(found, s[loc[0]:loc[1]])
		}
	}
	if len(found) == 1 {
		return found[0]
	}
	return Invalid
}

// isolated reports whether s[start:end] is not joined to a neighbouring word
// rune. Accented letters such as the Í in "DÍA" count as part of the word.
func isolated(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
