// Package matcher finds near-duplicate rows between two embedding matrices using
// fixed-size chunking so peak memory stays bounded regardless of input size.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of rows per block.
const DefaultChunkSize = 10000

// Mode selects how the two matrices relate.
type Mode int

const (
	// SelfCompare matches a dataset against itself: upper triangle only, no self matches.
	SelfCompare Mode = iota
	// CrossCompare matches two distinct datasets: every chunk pair is evaluated.
	CrossCompare
)

func (m Mode) String() string {
	switch m {
	case SelfCompare:
		return "self"
	case CrossCompare:
		return "cross"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// IndexSet holds comparison-matrix row indices. Membership only.
type IndexSet map[int]struct{}

// Contains reports whether i is in the set.
func (s IndexSet) Contains(i int) bool {
	_, ok := s[i]
	return ok
}

// Sorted returns the members in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Pair records the lowest target row whose similarity to a comparison row
// exceeded the threshold.
type Pair struct {
	Target     int
	Comparison int
	Similarity float32
}

// Result is the outcome of Match.
type Result struct {
	Indices IndexSet
	// Pairs is keyed by comparison row; only filled when WithPairs is set.
	Pairs map[int]Pair
	// Blocks is the number of chunk pairs evaluated.
	Blocks int
}

// Matcher compares embedding matrices by cosine similarity. Vectors must be
// L2-normalized so the dot product equals cosine similarity.
type Matcher struct {
	threshold    float32
	chunkSize    int
	workers      int
	collectPairs bool
	logger       *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithChunkSize sets the rows per block. Results do not depend on it.
func WithChunkSize(n int) Option {
	return func(m *Matcher) { m.chunkSize = n }
}

// WithWorkers bounds how many chunk pairs are evaluated concurrently.
func WithWorkers(n int) Option {
	return func(m *Matcher) { m.workers = n }
}

// WithPairs makes Match record which target row caused each duplicate.
func WithPairs(enabled bool) Option {
	return func(m *Matcher) { m.collectPairs = enabled }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New returns a Matcher that reports pairs with similarity strictly greater than threshold.
func New(threshold float32, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		threshold: threshold,
		chunkSize: DefaultChunkSize,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !(threshold > 0 && threshold <= 1) {
		return nil, &models.ConfigError{Field: "threshold", Reason: fmt.Sprintf("%v is outside (0,1]", threshold)}
	}
	if m.chunkSize <= 0 {
		return nil, &models.ConfigError{Field: "chunk_size", Reason: fmt.Sprintf("%d must be positive", m.chunkSize)}
	}
	if m.workers <= 0 {
		return nil, &models.ConfigError{Field: "workers", Reason: fmt.Sprintf("%d must be positive", m.workers)}
	}
	return m, nil
}

// Threshold returns the similarity cutoff.
func (m *Matcher) Threshold() float32 { return m.threshold }

type block struct {
	ti, ci int // chunk indices
}

// Match returns the comparison rows whose similarity to any target row exceeds
// the threshold. In SelfCompare mode comparison must be nil or the same matrix
// as target; a row never matches itself and each pair (i,j), i<j, records only j.
func (m *Matcher) Match(ctx context.Context, target, comparison *vector.Matrix, mode Mode) (*Result, error) {
	switch mode {
	case SelfCompare:
		if comparison != nil && comparison != target {
			return nil, errors.New("self comparison requires a single matrix")
		}
		comparison = target
	case CrossCompare:
		if comparison == nil {
			return nil, errors.New("cross comparison requires a comparison matrix")
		}
	default:
		return nil, fmt.Errorf("unknown mode %v", mode)
	}

	res := &Result{Indices: make(IndexSet)}
	if m.collectPairs {
		res.Pairs = make(map[int]Pair)
	}
	if target == nil || target.Rows() == 0 || comparison.Rows() == 0 {
		return res, nil
	}
	if target.Dim() != comparison.Dim() {
		return nil, &models.DimensionMismatchError{Expected: target.Dim(), Actual: comparison.Dim()}
	}

	start := time.Now()
	blocks := m.plan(target.Rows(), comparison.Rows(), mode)
	res.Blocks = len(blocks)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, b := range blocks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found := m.evalBlock(target, comparison, b, mode)
			mu.Lock()
			defer mu.Unlock()
			for _, p := range found {
				res.Indices[p.Comparison] = struct{}{}
				if res.Pairs != nil {
					if prev, ok := res.Pairs[p.Comparison]; !ok || p.Target < prev.Target {
						res.Pairs[p.Comparison] = p
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Debug("matcher finished",
			zap.Stringer("mode", mode),
			zap.Int("target_rows", target.Rows()),
			zap.Int("comparison_rows", comparison.Rows()),
			zap.Int("blocks", res.Blocks),
			zap.Int("duplicates", len(res.Indices)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return res, nil
}

// plan lists the chunk pairs to evaluate. Chunk counts use ceiling division so
// a trailing partial chunk is covered exactly once.
func (m *Matcher) plan(targetRows, compRows int, mode Mode) []block {
	tChunks := (targetRows + m.chunkSize - 1) / m.chunkSize
	cChunks := (compRows + m.chunkSize - 1) / m.chunkSize
	var blocks []block
	for ti := 0; ti < tChunks; ti++ {
		first := 0
		if mode == SelfCompare {
			first = ti
		}
		for ci := first; ci < cChunks; ci++ {
			blocks = append(blocks, block{ti: ti, ci: ci})
		}
	}
	return blocks
}

// evalBlock scans one target chunk against one comparison chunk. For every
// comparison row it stops at the first (lowest) target row above threshold.
func (m *Matcher) evalBlock(target, comparison *vector.Matrix, b block, mode Mode) []Pair {
	tStart := b.ti * m.chunkSize
	tEnd := min(tStart+m.chunkSize, target.Rows())
	cStart := b.ci * m.chunkSize
	cEnd := min(cStart+m.chunkSize, comparison.Rows())
	diagonal := mode == SelfCompare && b.ti == b.ci

	var found []Pair
	for j := cStart; j < cEnd; j++ {
		col := comparison.Row(j)
		iEnd := tEnd
		if diagonal {
			// only i < j inside the diagonal block
			iEnd = min(tEnd, j)
		}
		for i := tStart; i < iEnd; i++ {
			if sim := vector.Dot32(target.Row(i), col); sim > m.threshold {
				found = append(found, Pair{Target: i, Comparison: j, Similarity: sim})
				break
			}
		}
	}
	return found
}
