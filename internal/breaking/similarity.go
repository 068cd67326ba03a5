package breaking

import (
	"strings"
	"unicode"
)

// NameTokens splits an identifier into lowercase word tokens. It understands
// camelCase, PascalCase with acronyms, snake_case, kebab-case and path
// separators, so "HTTPServerConfig" yields [http server config].
func NameTokens(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

// TokenOverlap is the Jaccard similarity of two names' token sets
func TokenOverlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(name string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range NameTokens(name) {
		set[t] = true
	}
	return set
}

// renameConfidence decides whether a removed/added pair at the same position is a rename
type renameConfidence int

const (
	notRename renameConfidence = iota
	renameLow
	renameHigh
)

func classifyRename(oldName, newName, oldParams, newParams string, callable bool, threshold float64) renameConfidence {
	overlap := TokenOverlap(oldName, newName)
	switch {
	case overlap >= threshold:
		return renameHigh
	case overlap > 0:
		return renameLow
	case callable && oldParams == newParams:
		return renameLow
	default:
		return notRename
	}
}
