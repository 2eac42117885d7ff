package engine

import (
	"fmt"

	"github.com/imagesieve/imagesieve/internal/metric"
)

// Pair is one scored candidate pair of corpus indices that cleared the
// related threshold.
type Pair struct {
	A, B  int
	Score float64
}

// Scanner enumerates scored candidate pairs in a fixed order. A scan is
// divided into positions so the run loop can checkpoint and cancel between
// them; pair order within and across positions is deterministic.
type Scanner interface {
	// Name identifies the enumeration strategy. Checkpoints record it so a
	// resume never reinterprets a stored position under different semantics.
	Name() string
	// Positions returns the number of scan positions for the corpus.
	Positions() int
	// ScanPosition scores the pairs at one position and emits those passing
	// the related threshold, in ascending index order.
	ScanPosition(pos int, emit func(Pair)) error
}

// defaultMemoryBudget bounds a matrix chunk when the caller gives no budget.
const defaultMemoryBudget int64 = 512 << 20

// chunkRows sizes a matrix chunk to the memory budget: how many rows of the
// similarity matrix fit in budget bytes. Always at least 1 so the scan makes
// progress regardless of how small the budget is.
func chunkRows(memBudget int64, n int, bytesPerRow int64) int {
	if memBudget <= 0 {
		memBudget = defaultMemoryBudget
	}
	if n <= 0 || bytesPerRow <= 0 {
		return 1
	}
	rows := memBudget / (int64(n) * bytesPerRow)
	if rows < 1 {
		return 1
	}
	if rows > int64(n) {
		return n
	}
	return int(rows)
}

// MatrixScanner computes upper-triangle pair similarities in row chunks
// sized to a memory budget. Each position covers one chunk of rows; pair
// (a, b) is visited exactly once, at the position owning row a, with a < b.
type MatrixScanner struct {
	corpus  *Corpus
	metric  metric.Metric
	related float64
	chunk   int
}

// NewMatrixScanner sizes chunks from the corpus width. bytesPerRow is
// derived from the feature payload so the budget reflects what a vectorized
// row-times-matrix product would materialize.
func NewMatrixScanner(c *Corpus, m metric.Metric, related float64, memBudget int64) *MatrixScanner {
	return &MatrixScanner{
		corpus:  c,
		metric:  m,
		related: related,
		chunk:   chunkRows(memBudget, c.Len(), rowBytes(c)),
	}
}

// rowBytes estimates the bytes one similarity-matrix row occupies.
func rowBytes(c *Corpus) int64 {
	return int64(c.Len()) * 8
}

func (s *MatrixScanner) Name() string {
	return "matrix"
}

func (s *MatrixScanner) ChunkRows() int {
	return s.chunk
}

func (s *MatrixScanner) Positions() int {
	n := s.corpus.Len()
	if n == 0 {
		return 0
	}
	return (n + s.chunk - 1) / s.chunk
}

func (s *MatrixScanner) ScanPosition(pos int, emit func(Pair)) error {
	n := s.corpus.Len()
	lo := pos * s.chunk
	hi := min(lo+s.chunk, n)

	for a := lo; a < hi; a++ {
		for b := a + 1; b < n; b++ {
			score, err := s.metric.Score(s.corpus.Features[a], s.corpus.Features[b])
			if err != nil {
				return fmt.Errorf("failed to score pair (%d, %d): %w", a, b, err)
			}
			if metric.Passes(s.metric.Polarity(), score, s.related) {
				emit(Pair{A: a, B: b, Score: score})
			}
		}
	}
	return nil
}

// RotationScanner compares the corpus against itself rotated by each offset
// 1..N-1. Pair (a, (a-offset) mod N) is emitted at offset for every a, so
// every unordered pair is visited twice across the scan (at offset i and at
// N-i). The double visit is deliberate: downstream consumers tolerate
// re-seen pairs, and deduplicating here would change the documented scan
// order.
type RotationScanner struct {
	corpus  *Corpus
	metric  metric.Metric
	related float64
}

func NewRotationScanner(c *Corpus, m metric.Metric, related float64) *RotationScanner {
	return &RotationScanner{corpus: c, metric: m, related: related}
}

func (s *RotationScanner) Name() string {
	return "rotation"
}

func (s *RotationScanner) Positions() int {
	return s.corpus.Len()
}

func (s *RotationScanner) ScanPosition(pos int, emit func(Pair)) error {
	n := s.corpus.Len()
	if pos == 0 {
		// At this offset the corpus would compare to itself
		return nil
	}

	for a := range n {
		b := ((a - pos) % n + n) % n
		score, err := s.metric.Score(s.corpus.Features[a], s.corpus.Features[b])
		if err != nil {
			return fmt.Errorf("failed to score pair (%d, %d): %w", a, b, err)
		}
		if metric.Passes(s.metric.Polarity(), score, s.related) {
			emit(Pair{A: a, B: b, Score: score})
		}
	}
	return nil
}
