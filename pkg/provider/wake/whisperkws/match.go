package whisperkws

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// matchPhrase scores how well the decoded text contains the wake phrase.
//
// Two stages, mirroring how proper-noun correction is usually done on noisy
// transcripts: Double Metaphone codes establish phonetic candidacy per token,
// then Jaro-Winkler on the aligned n-gram produces the confidence. A phrase
// is only considered heard when every phrase token has a phonetic counterpart
// in the window, which keeps single-word false positives down.
func matchPhrase(text, phrase string) (confidence float64, ok bool) {
	textTokens := strings.Fields(strings.ToLower(text))
	phraseTokens := strings.Fields(strings.ToLower(phrase))
	if len(textTokens) == 0 || len(phraseTokens) == 0 {
		return 0, false
	}
	if len(textTokens) < len(phraseTokens) {
		return 0, false
	}

	phraseCodes := make([][2]string, len(phraseTokens))
	for i, t := range phraseTokens {
		p, s := matchr.DoubleMetaphone(t)
		phraseCodes[i] = [2]string{p, s}
	}

	phraseFull := strings.Join(phraseTokens, " ")
	var best float64

	// Slide an n-gram of the phrase length across the window.
	for start := 0; start+len(phraseTokens) <= len(textTokens); start++ {
		gram := textTokens[start : start+len(phraseTokens)]

		phonetic := true
		for i, token := range gram {
			if !codesOverlap(token, phraseCodes[i]) {
				phonetic = false
				break
			}
		}
		if !phonetic {
			continue
		}

		if score := matchr.JaroWinkler(strings.Join(gram, " "), phraseFull, false); score > best {
			best = score
		}
	}

	return best, best > 0
}

// codesOverlap reports whether token shares a Double Metaphone code with the
// precomputed phrase-token codes.
func codesOverlap(token string, phrase [2]string) bool {
	p, s := matchr.DoubleMetaphone(token)
	for _, a := range []string{p, s} {
		if a == "" {
			continue
		}
		for _, b := range []string{phrase[0], phrase[1]} {
			if b != "" && a == b {
				return true
			}
		}
	}
	return false
}

// acceptThreshold maps the user-facing wake sensitivity to the minimum
// Jaro-Winkler confidence required to fire. Higher sensitivity accepts
// looser matches.
func acceptThreshold(sensitivity float64) float64 {
	if sensitivity < 0.01 {
		sensitivity = 0.01
	} else if sensitivity > 1 {
		sensitivity = 1
	}
	return 0.95 - sensitivity*0.20
}
