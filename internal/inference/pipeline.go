package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/depth-api/internal/model"
)

const DefaultTimeout = 2 * time.Second

// ErrTimeout means the evaluation did not finish before the request deadline.
var ErrTimeout = errors.New("evaluation deadline exceeded")

type Options struct {
	// Workers caps concurrent forward passes. Zero means one per CPU.
	Workers int
	// Timeout bounds queueing plus evaluation for a single request.
	Timeout time.Duration
	// CacheSize is the number of scores kept per exact input pair.
	// Zero disables the cache.
	CacheSize int
}

type features struct {
	bpm, rmssd float32
}

// Pipeline turns a feature pair into a depth score using the shared model.
type Pipeline struct {
	handle  *model.Handle
	slots   *semaphore.Weighted
	workers int
	timeout time.Duration
	cache   *lru.Cache[features, float32]
	logger  *zap.Logger
}

func NewPipeline(h *model.Handle, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if h == nil {
		return nil, errors.New("model handle required")
	}
	if opts.Workers < 0 || opts.CacheSize < 0 || opts.Timeout < 0 {
		return nil, fmt.Errorf("invalid pipeline options: %+v", opts)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		handle:  h,
		slots:   semaphore.NewWeighted(int64(opts.Workers)),
		workers: opts.Workers,
		timeout: opts.Timeout,
		logger:  logger,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[features, float32](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create score cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Pipeline) Workers() int { return p.workers }

type result struct {
	score float32
	err   error
}

// Run evaluates one [bpm, rmssd] row. The forward pass runs on a worker
// slot; the caller stops waiting when ctx ends or the timeout passes.
func (p *Pipeline) Run(ctx context.Context, bpm, rmssd float32) (float32, error) {
	key := features{bpm: bpm, rmssd: rmssd}
	if p.cache != nil {
		if score, ok := p.cache.Get(key); ok {
			return score, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if ctx.Err() != nil {
		return 0, p.contextErr(ctx)
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return 0, p.contextErr(ctx)
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		defer p.slots.Release(1)
		score, err := p.evaluate(bpm, rmssd)
		if ctx.Err() != nil {
			p.logger.Warn("evaluation finished after caller gave up",
				zap.Duration("took", time.Since(start)))
		}
		done <- result{score: score, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		if p.cache != nil {
			p.cache.Add(key, r.score)
		}
		return r.score, nil
	case <-ctx.Done():
		return 0, p.contextErr(ctx)
	}
}

func (p *Pipeline) contextErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrTimeout, p.timeout, err)
	}
	return err
}

func (p *Pipeline) evaluate(bpm, rmssd float32) (float32, error) {
	input := model.Tensor{
		Shape: slices.Clone(model.InputShape),
		Data:  make([]float32, model.NumFeatures),
	}
	input.Data[model.FeatureBPM] = bpm
	input.Data[model.FeatureRMSSD] = rmssd

	out, err := p.handle.Evaluate(input)
	if err != nil {
		return 0, err
	}

	// [0,0] in row-major order.
	score := out.Data[0]
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return 0, fmt.Errorf("%w: non-finite score %v", model.ErrEvaluation, score)
	}
	return score, nil
}
