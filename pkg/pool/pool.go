// Package pool wraps a bounded worker pool used for parallel embedding
// during ingestion.
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config defines the worker pool configuration.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker survives.
	ExpiryDuration time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:       32,
		ExpiryDuration: 10 * time.Second,
	}
}

// Pool is a bounded worker pool.
type Pool struct {
	pool      *ants.Pool
	submitted atomic.Int64
	failed    atomic.Int64
}

// New creates a Pool with the given configuration.
func New(cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p, err := ants.NewPool(cfg.Capacity,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithPanicHandler(func(v any) {
			logger.Errorw("worker panic recovered", "panic", v)
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p}, nil
}

// Submit schedules task on the pool, blocking while the pool is full.
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	if err := p.pool.Submit(task); err != nil {
		p.failed.Add(1)
		return err
	}
	return nil
}

// Map runs fn over n items on the pool and waits for all of them.
func (p *Pool) Map(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		if err := p.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			// Pool rejected the task; run it inline so the batch
			// still completes.
			fn(i)
			wg.Done()
		}
	}
	wg.Wait()
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release shuts down the pool.
func (p *Pool) Release() {
	p.pool.Release()
}
