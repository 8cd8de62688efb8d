package dataset

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Sample is one decoded training example.
type Sample struct {
	Input []float64
	Label int
}

// LoaderOptions configures the prefetching image loader.
type LoaderOptions struct {
	Samples    []FileSample
	ImageSize  int
	NumWorkers int
	Prefetch   int
	Seed       int64
}

// Loader streams decoded samples through a bounded worker pool. Each call
// to Epoch yields the full sample set in a freshly shuffled order; the
// shuffle sequence is reproducible for a fixed seed.
type Loader struct {
	opts    LoaderOptions
	rng     *rand.Rand
	skipped atomic.Int64
}

// NewLoader validates opts and builds a Loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if len(opts.Samples) == 0 {
		return nil, errors.New("loader: no samples provided")
	}
	if opts.ImageSize <= 0 {
		return nil, errors.New("loader: image size must be > 0")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 64
	}
	return &Loader{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Len reports the number of samples behind the loader.
func (l *Loader) Len() int { return len(l.opts.Samples) }

// Skipped reports how many images failed to decode so far.
func (l *Loader) Skipped() int64 { return l.skipped.Load() }

// Epoch starts streaming one shuffled pass over the dataset. The sample
// channel is closed when the pass completes; a failure is delivered on
// the error channel before both close. Decoded samples are emitted in
// shuffle order regardless of which worker finished first.
func (l *Loader) Epoch(ctx context.Context) (<-chan Sample, <-chan error) {
	order := append([]FileSample(nil), l.opts.Samples...)
	l.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	out := make(chan Sample, l.opts.Prefetch)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := l.stream(ctx, order, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

type decodeJob struct {
	seq  int
	file FileSample
}

type decodeResult struct {
	seq    int
	sample Sample
	skip   bool
}

func (l *Loader) stream(ctx context.Context, order []FileSample, out chan<- Sample) error {
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan decodeJob)
	results := make(chan decodeResult, l.opts.NumWorkers*2)

	g.Go(func() error {
		defer close(jobs)
		for seq, file := range order {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case jobs <- decodeJob{seq: seq, file: file}:
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for i := 0; i < l.opts.NumWorkers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return l.decodeLoop(ctx, jobs, results)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		return reorder(ctx, results, out)
	})

	return g.Wait()
}

func (l *Loader) decodeLoop(ctx context.Context, jobs <-chan decodeJob, results chan<- decodeResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			res := decodeResult{seq: job.seq}
			input, err := DecodeImage(job.file.Path, l.opts.ImageSize)
			if err != nil {
				l.skipped.Add(1)
				slog.Warn("skipping unreadable image", "path", job.file.Path, "error", err)
				res.skip = true
			} else {
				res.sample = Sample{Input: input, Label: job.file.Label}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case results <- res:
			}
		}
	}
}

// reorder re-sequences worker output so downstream consumers observe the
// shuffle order. At most NumWorkers results are ever held out of order.
func reorder(ctx context.Context, results <-chan decodeResult, out chan<- Sample) error {
	pending := make(map[int]decodeResult)
	next := 0
	for res := range results {
		pending[res.seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if r.skip {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- r.sample:
			}
		}
	}
	return nil
}
