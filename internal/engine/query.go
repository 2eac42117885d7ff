package engine

import (
	"fmt"
	"sort"

	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/metric"
)

// Match is one ranked query result.
type Match struct {
	Path  string
	Score float64
}

// QueryOptions tune a corpus query.
type QueryOptions struct {
	// Threshold is the absolute cutoff used by closest-only mode.
	Threshold float64
	// TextOnly loosens the threshold to a third of its value: text queries
	// are much less likely to match an image embedding exactly.
	TextOnly bool
	// MaxResults caps the ranked result list; <= 0 means no cap.
	MaxResults int
	// ClosestOnly returns every match clearing the absolute threshold
	// instead of a fixed-size top ranking. Only the first positive vector
	// is consulted in this mode.
	ClosestOnly bool
}

// MatchQuery ranks the corpus against positive and negative query vectors.
// Each corpus member is scored against every query vector; the positive
// scores are averaged, the negative scores are averaged, and the combined
// score is their difference, so negative terms pull a file down the ranking
// rather than excluding it. Results sort from most to least similar under
// the metric's polarity.
func MatchQuery(c *Corpus, m metric.Metric, positive, negative []feature.Value, opts QueryOptions) ([]Match, error) {
	if len(positive) == 0 && len(negative) == 0 {
		return nil, fmt.Errorf("%w: no query vectors", ErrNoResults)
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%w: empty corpus", ErrNoResults)
	}

	threshold := opts.Threshold
	if opts.TextOnly {
		threshold = threshold / 3
	}

	if opts.ClosestOnly {
		if len(positive) == 0 {
			return nil, fmt.Errorf("%w: closest-only mode needs a positive query", ErrNoResults)
		}
		return matchClosest(c, m, positive[0], threshold)
	}

	matches := make([]Match, 0, c.Len())
	for i, f := range c.Features {
		combined, err := combinedScore(m, f, positive, negative)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", c.Files[i], err)
		}
		matches = append(matches, Match{Path: c.Files[i], Score: combined})
	}

	sortMatches(matches, m.Polarity())

	if opts.MaxResults > 0 && len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

// matchClosest returns every corpus member whose score against the single
// query vector clears the absolute threshold.
func matchClosest(c *Corpus, m metric.Metric, query feature.Value, threshold float64) ([]Match, error) {
	var matches []Match
	for i, f := range c.Features {
		score, err := m.Score(f, query)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", c.Files[i], err)
		}
		if metric.Passes(m.Polarity(), score, threshold) {
			matches = append(matches, Match{Path: c.Files[i], Score: score})
		}
	}

	sortMatches(matches, m.Polarity())
	return matches, nil
}

func combinedScore(m metric.Metric, f feature.Value, positive, negative []feature.Value) (float64, error) {
	var posAvg, negAvg float64

	if len(positive) > 0 {
		var sum float64
		for _, q := range positive {
			score, err := m.Score(f, q)
			if err != nil {
				return 0, err
			}
			sum += score
		}
		posAvg = sum / float64(len(positive))
	}

	if len(negative) > 0 {
		var sum float64
		for _, q := range negative {
			score, err := m.Score(f, q)
			if err != nil {
				return 0, err
			}
			sum += score
		}
		negAvg = sum / float64(len(negative))
	}

	return posAvg - negAvg, nil
}

// sortMatches orders most similar first, breaking score ties by path so the
// ranking is deterministic.
func sortMatches(matches []Match, p metric.Polarity) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			if p == metric.LowerIsBetter {
				return matches[i].Score < matches[j].Score
			}
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})
}
