package chatsim

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, strips accents and turns punctuation into single spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	stripped = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, stripped)

	return strings.Join(strings.Fields(stripped), " ")
}

func tokenSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// score counts keyword hits. Multi-word keywords match as phrases, single
// words match exactly or as a prefix when at least four letters long ("robo" hits "robos").
func score(keywords []string, normalized string, words map[string]struct{}) int {
	padded := " " + normalized + " "
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(padded, " "+kw+" ") {
				hits += 2
			}
			continue
		}
		if _, ok := words[kw]; ok {
			hits++
			continue
		}
		if len(kw) >= 4 {
			for w := range words {
				if strings.HasPrefix(w, kw) {
					hits++
					break
				}
			}
		}
	}
	return hits
}

// isEcho reports whether candidate just repeats the triggering message.
func isEcho(candidate, trigger string) bool {
	c, t := Normalize(candidate), Normalize(trigger)
	return c != "" && c == t
}
