package metric

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/imagesieve/imagesieve/internal/feature"
)

const (
	// positiveWeight and negativeWeight combine the two prompt channels of a
	// pair into one score.
	positiveWeight = 0.7
	negativeWeight = 0.3
)

// Prompts scores extracted generation prompts by graduated text similarity:
// exact match, containment, structural-element overlap, then fuzzy word
// matching, each tier capped below the previous one.
type Prompts struct{}

func NewPrompts() *Prompts {
	return &Prompts{}
}

func (m *Prompts) Name() string { return "prompts" }

func (m *Prompts) Kind() feature.Kind { return feature.KindPrompts }

func (m *Prompts) Polarity() Polarity { return HigherIsBetter }

func (m *Prompts) Score(a, b feature.Value) (float64, error) {
	pa, ok := a.(feature.PromptPair)
	if !ok {
		return 0, fmt.Errorf("prompts metric got %T", a)
	}
	pb, ok := b.(feature.PromptPair)
	if !ok {
		return 0, fmt.Errorf("prompts metric got %T", b)
	}

	positive := TextSimilarity(pa.Positive, pb.Positive)
	negative := TextSimilarity(pa.Negative, pb.Negative)
	return positive*positiveWeight + negative*negativeWeight, nil
}

// removeDiacritics folds diacritical marks so accented prompt variants
// compare equal (e.g. "café" vs "cafe").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(removeDiacritics(s)))
}

// TextSimilarity returns a graduated similarity in [0, 1] between two texts.
// Identical texts score 1.0, containment 0.9, structural-element overlap up
// to 0.95, and fuzzy word overlap at most 0.7.
func TextSimilarity(text1, text2 string) float64 {
	if text1 == "" || text2 == "" {
		return 0.0
	}
	t1 := normalizeText(text1)
	t2 := normalizeText(text2)
	if t1 == t2 {
		return 1.0
	}
	if strings.Contains(t2, t1) || strings.Contains(t1, t2) {
		return 0.9
	}

	elems1 := splitStructuredElements(t1)
	elems2 := splitStructuredElements(t2)
	if len(elems1) > 0 && len(elems2) > 0 {
		var intersection int
		for e := range elems1 {
			if _, ok := elems2[e]; ok {
				intersection++
			}
		}
		union := len(elems1) + len(elems2) - intersection
		if intersection > 0 {
			sim := float64(intersection) / float64(union)
			// A multi-element overlap is a strong structural signal
			if intersection >= 2 {
				sim = min(0.95, sim*1.3)
			}
			return sim
		}
	}

	words1 := splitWords(t1)
	words2 := splitWords(t2)
	if len(words1) == 0 || len(words2) == 0 {
		return 0.0
	}
	return min(0.7, fuzzyWordSimilarity(words1, words2))
}

// splitStructuredElements splits on commas and newlines, the separators
// prompt authors use between tags.
func splitStructuredElements(text string) map[string]struct{} {
	elements := make(map[string]struct{})
	for _, sep := range []string{",", "\n", "\r\n"} {
		for _, elem := range strings.Split(text, sep) {
			elem = strings.TrimSpace(elem)
			if elem != "" {
				elements[elem] = struct{}{}
			}
		}
	}
	return elements
}

func splitWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		words[w] = struct{}{}
	}
	return words
}

type wordPair struct {
	a, b string
}

// fuzzyWordSimilarity scores word sets by exact matches (weight 1.0),
// substring matches of words at least 3 runes long (0.8), and words within
// levenshtein distance 2 (0.6), normalized by the union size.
func fuzzyWordSimilarity(words1, words2 map[string]struct{}) float64 {
	exact := make(map[string]struct{})
	for w := range words1 {
		if _, ok := words2[w]; ok {
			exact[w] = struct{}{}
		}
	}

	substrings := make(map[wordPair]struct{})
	for w1 := range words1 {
		for w2 := range words2 {
			if w1 != w2 && len(w1) >= 3 && len(w2) >= 3 {
				if strings.Contains(w2, w1) || strings.Contains(w1, w2) {
					substrings[wordPair{w1, w2}] = struct{}{}
				}
			}
		}
	}

	fuzzy := make(map[wordPair]struct{})
	for w1 := range words1 {
		if _, ok := exact[w1]; ok {
			continue
		}
		for w2 := range words2 {
			if _, ok := exact[w2]; ok {
				continue
			}
			if w1 == w2 || len(w1) < 3 || len(w2) < 3 {
				continue
			}
			if _, ok := substrings[wordPair{w1, w2}]; ok {
				continue
			}
			if levenshtein(w1, w2) <= 2 {
				fuzzy[wordPair{w1, w2}] = struct{}{}
			}
		}
	}

	totalMatches := float64(len(exact)) + float64(len(substrings))*0.8 + float64(len(fuzzy))*0.6
	union := len(words1)
	for w := range words2 {
		if _, ok := words1[w]; !ok {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return totalMatches / float64(union)
}

func levenshtein(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) < len(r2) {
		r1, r2 = r2, r1
	}
	if len(r2) == 0 {
		return len(r1)
	}

	previous := make([]int, len(r2)+1)
	current := make([]int, len(r2)+1)
	for j := range previous {
		previous[j] = j
	}

	for i, c1 := range r1 {
		current[0] = i + 1
		for j, c2 := range r2 {
			insertions := previous[j+1] + 1
			deletions := current[j] + 1
			substitutions := previous[j]
			if c1 != c2 {
				substitutions++
			}
			current[j+1] = min(insertions, deletions, substitutions)
		}
		previous, current = current, previous
	}
	return previous[len(r2)]
}
