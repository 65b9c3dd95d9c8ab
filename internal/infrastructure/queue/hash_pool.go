package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsyntes/authentication-authorization-security/internal/core/auth"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// ErrPoolStopped is returned for work submitted after the pool shut down.
var ErrPoolStopped = errors.New("hash pool stopped")

type hashResult struct {
	hash string
	ok   bool
	err  error
}

type hashJob struct {
	ctx    context.Context
	op     string
	run    func() hashResult
	result chan hashResult
}

// HashPool runs bcrypt work on a fixed set of workers so a burst of logins
// cannot occupy every CPU. It implements ports.PasswordHasher.
type HashPool struct {
	hasher  *auth.Hasher
	workers int
	jobs    chan hashJob
	done    chan struct{}
	log     zerolog.Logger
}

// NewHashPool creates a pool with numWorkers workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewHashPool(numWorkers int, hasher *auth.Hasher, log zerolog.Logger) *HashPool {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	return &HashPool{
		hasher:  hasher,
		workers: numWorkers,
		jobs:    make(chan hashJob, channelBuffer),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled,
// after which every call fails with ErrPoolStopped.
func (p *HashPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		close(p.done)
	}()
}

// Hash returns the bcrypt hash of plaintext.
func (p *HashPool) Hash(ctx context.Context, plaintext string) (string, error) {
	res, err := p.submit(ctx, "hash", func() hashResult {
		h, err := p.hasher.Hash(plaintext)
		return hashResult{hash: h, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify reports whether plaintext matches hash.
func (p *HashPool) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	res, err := p.submit(ctx, "verify", func() hashResult {
		return hashResult{ok: p.hasher.Verify(plaintext, hash)}
	})
	if err != nil {
		return false, err
	}
	return res.ok, nil
}

func (p *HashPool) submit(ctx context.Context, op string, run func() hashResult) (hashResult, error) {
	job := hashJob{ctx: ctx, op: op, run: run, result: make(chan hashResult, 1)}

	metrics.HashQueueDepth.Inc()
	select {
	case p.jobs <- job:
	case <-p.done:
		metrics.HashQueueDepth.Dec()
		return hashResult{}, ErrPoolStopped
	case <-ctx.Done():
		metrics.HashQueueDepth.Dec()
		return hashResult{}, ctx.Err()
	}

	select {
	case res := <-job.result:
		return res, nil
	case <-p.done:
		return hashResult{}, ErrPoolStopped
	case <-ctx.Done():
		return hashResult{}, ctx.Err()
	}
}

func (p *HashPool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			metrics.HashQueueDepth.Dec()
			// the caller already gave up
			if job.ctx.Err() != nil {
				continue
			}

			start := time.Now()
			res := job.run()
			metrics.HashDuration.WithLabelValues(job.op).Observe(time.Since(start).Seconds())
			if res.err != nil && domain.KindOf(res.err) != domain.KindValidationFailed {
				p.log.Error().Err(res.err).
					Str("op", job.op).
					Int("worker_id", id).
					Msg("password hashing failed")
			}
			job.result <- res
		}
	}
}
