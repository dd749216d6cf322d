// Package dedup runs the end-to-end deduplication: identify images, reuse or
// compute their embeddings, persist the cache, match, and split the target
// list into kept and dropped images.
package dedup

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/imgdedup/internal/cache"
	"github.com/hyperjump/imgdedup/internal/embedding"
	"github.com/hyperjump/imgdedup/internal/fileid"
	"github.com/hyperjump/imgdedup/internal/matcher"
	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
	"github.com/hyperjump/imgdedup/pkg/utils"
	"go.uber.org/zap"
)

// Defaults used when the corresponding option is not set.
const (
	DefaultThreshold = 0.95
	DefaultBatchSize = 16
)

// Request names the images of one run.
type Request struct {
	// Targets are the images to deduplicate, in row order.
	Targets []string
	// Comparisons are matched against Targets when Self is false.
	Comparisons []string
	// Self deduplicates Targets against themselves.
	Self bool
	// Threshold overrides the orchestrator's threshold when non-zero. It must
	// lie in (0,1].
	Threshold float32
}

// Orchestrator ties the cache, provider and matcher together. One
// Orchestrator serialises its runs; the cache store is shared between them.
type Orchestrator struct {
	cache     *cache.Cache
	provider  embedding.Provider
	keyer     *fileid.Keyer
	threshold float32
	batchSize int
	chunkSize int
	workers   int
	logger    *zap.Logger
	mu        sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithThreshold sets the default similarity cutoff.
func WithThreshold(t float32) Option {
	return func(o *Orchestrator) { o.threshold = t }
}

// WithBatchSize sets how many images are handed to the provider per call.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithChunkSize sets the matcher block size.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) { o.chunkSize = n }
}

// WithWorkers bounds hashing and matching parallelism.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New returns an Orchestrator. Invalid numeric settings fail with a ConfigError.
func New(c *cache.Cache, provider embedding.Provider, keyer *fileid.Keyer, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cache:     c,
		provider:  provider,
		keyer:     keyer,
		threshold: DefaultThreshold,
		batchSize: DefaultBatchSize,
		chunkSize: matcher.DefaultChunkSize,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.batchSize <= 0 {
		return nil, &models.ConfigError{Field: "batch_size", Reason: fmt.Sprintf("%d must be positive", o.batchSize)}
	}
	if _, err := o.newMatcher(o.threshold); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) newMatcher(threshold float32) (*matcher.Matcher, error) {
	return matcher.New(threshold,
		matcher.WithChunkSize(o.chunkSize),
		matcher.WithWorkers(o.workers),
		matcher.WithPairs(true),
		matcher.WithLogger(o.logger),
	)
}

// embedded is one image list with its embedding matrix.
type embedded struct {
	refs     []models.ImageRef
	features *vector.Matrix
}

// Run deduplicates req.Targets. In self mode a target is dropped when an
// earlier target is a near-duplicate; in cross mode when any comparison image
// is. The cache is updated before matching starts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	start := time.Now()
	threshold := o.threshold
	if req.Threshold != 0 {
		threshold = req.Threshold
	}
	m, err := o.newMatcher(threshold)
	if err != nil {
		return nil, err
	}
	mode := matcher.CrossCompare
	if req.Self {
		mode = matcher.SelfCompare
	}
	res := &models.Result{
		RunID:   uuid.New().String(),
		Mode:    mode.String(),
		Keep:    []string{},
		Dropped: []string{},
	}
	log := o.logger.With(zap.String("run_id", res.RunID))
	res.Stats.Targets = len(req.Targets)
	if !req.Self {
		res.Stats.Comparisons = len(req.Comparisons)
	}
	if len(req.Targets) == 0 {
		log.Info("no target images")
		return res, nil
	}

	store, err := o.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	targets, store, err := o.embed(ctx, log, req.Targets, store, &res.Stats)
	if err != nil {
		return nil, err
	}

	var mres *matcher.Result
	var originals []models.ImageRef
	if req.Self {
		mres, err = m.Match(ctx, targets.features, nil, matcher.SelfCompare)
		originals = targets.refs
	} else {
		var comps *embedded
		comps, _, err = o.embed(ctx, log, req.Comparisons, store, &res.Stats)
		if err != nil {
			return nil, err
		}
		// Comparison rows play the target role so the returned indices are
		// rows of the target list.
		mres, err = m.Match(ctx, comps.features, targets.features, matcher.CrossCompare)
		originals = comps.refs
	}
	if err != nil {
		return nil, err
	}

	for _, ref := range targets.refs {
		if !mres.Indices.Contains(ref.Row) {
			res.Keep = append(res.Keep, ref.Path)
			continue
		}
		res.Dropped = append(res.Dropped, ref.Path)
		if p, ok := mres.Pairs[ref.Row]; ok {
			res.Pairs = append(res.Pairs, models.DuplicatePair{
				Duplicate:  ref.Path,
				Original:   originals[p.Target].Path,
				Similarity: p.Similarity,
			})
		}
	}
	res.Stats.Elapsed = time.Since(start)
	log.Info("deduplication finished",
		zap.String("mode", res.Mode),
		zap.Int("kept", len(res.Keep)),
		zap.Int("dropped", len(res.Dropped)),
		zap.Int("cache_hits", res.Stats.CacheHits),
		zap.Int("computed", res.Stats.Computed),
		zap.Duration("elapsed", res.Stats.Elapsed),
	)
	return res, nil
}

// embed returns the embedding matrix of paths in order, computing misses in
// sequential provider batches and persisting the merged store.
func (o *Orchestrator) embed(ctx context.Context, log *zap.Logger, paths []string, store *cache.Store, stats *models.RunStats) (*embedded, *cache.Store, error) {
	ids, err := o.keyer.IDs(ctx, paths, o.workers)
	if err != nil {
		return nil, nil, err
	}
	refs := make([]models.ImageRef, len(paths))
	for i, p := range paths {
		refs[i] = models.ImageRef{Path: p, ID: ids[i], Row: i}
	}

	plan := cache.Partition(ids, store)
	stats.CacheHits += len(plan.Hits)
	stats.Computed += len(plan.Misses)
	log.Debug("cache partition",
		zap.Int("requested", len(paths)),
		zap.Int("hits", len(plan.Hits)),
		zap.Int("misses", len(plan.Misses)),
	)

	computed, batches, err := o.compute(ctx, log, plan, paths)
	if err != nil {
		return nil, nil, err
	}
	stats.Batches += batches
	if computed.Rows() > 0 {
		if err := cache.CheckDimension(store, computed.Dim()); err != nil {
			return nil, nil, err
		}
	}
	features, err := cache.Assemble(plan, store, computed)
	if err != nil {
		return nil, nil, err
	}
	store, err = o.cache.MergeAndPersist(ctx, store, plan.MissIDs(), computed)
	if err != nil {
		return nil, nil, err
	}
	return &embedded{refs: refs, features: features}, store, nil
}

// unitNormTolerance is how far a provider vector's norm may drift from 1
// before it is renormalized.
const unitNormTolerance = 1e-3

// compute embeds every miss. Each batch completes before the next starts.
// Zero or non-finite vectors fail the batch.
func (o *Orchestrator) compute(ctx context.Context, log *zap.Logger, plan *cache.Plan, paths []string) (*vector.Matrix, int, error) {
	n := len(plan.Misses)
	if n == 0 {
		return vector.NewMatrix(0, 0), 0, nil
	}
	dim := o.provider.Dimensions()
	out := vector.NewMatrix(n, dim)
	total := (n + o.batchSize - 1) / o.batchSize
	for b := 0; b < total; b++ {
		lo := b * o.batchSize
		hi := min(lo+o.batchSize, n)
		batch := make([]string, 0, hi-lo)
		for _, miss := range plan.Misses[lo:hi] {
			batch = append(batch, paths[miss.Positions[0]])
		}
		vecs, err := o.provider.EmbedBatch(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("provider returned %d vectors for %d images", len(vecs), len(batch))
		}
		if err != nil {
			return nil, 0, models.NewProviderError(b, batch, err)
		}
		rows := out.Slice(lo, hi)
		for i, v := range vecs {
			if len(v) != dim {
				return nil, 0, models.NewProviderError(b, batch, &models.DimensionMismatchError{Expected: dim, Actual: len(v)})
			}
			if err := rows.SetRow(i, v); err != nil {
				return nil, 0, err
			}
			norm := vector.L2Norm(rows.Row(i))
			switch {
			case norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0):
				return nil, 0, models.NewProviderError(b, batch, fmt.Errorf("%s: embedding has norm %v", batch[i], norm))
			case math.Abs(norm-1) > unitNormTolerance:
				log.Debug("renormalizing embedding", zap.String("path", batch[i]), zap.Float64("norm", norm))
				utils.NormalizeL2(rows.Row(i))
			}
		}
		log.Debug("embedding batch done",
			zap.Int("batch", b+1),
			zap.Int("batches", total),
			zap.Int("images", len(batch)),
		)
	}
	return out, total, nil
}
