package starlark

import (
	"context"
	"sync"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// ThreadPool manages a pool of Starlark threads for parallel evaluation.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

// NewThreadPool creates a new thread pool with the specified maximum size.
func NewThreadPool(maxSize int) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}

	return NewThread(name)
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// ArgsFunc returns the arguments of row i.
type ArgsFunc func(i int) []starlark.Value

// RowEvaluator evaluates an expression over many rows in parallel.
type RowEvaluator struct {
	pool    *ThreadPool
	workers int
	chunk   int
}

// NewRowEvaluator creates an evaluator that uses at most workers goroutines.
func NewRowEvaluator(workers int) *RowEvaluator {
	if workers <= 0 {
		workers = 4
	}
	return &RowEvaluator{pool: NewThreadPool(workers), workers: workers, chunk: 1024}
}

// Eval evaluates e for rows [0, n). Results are returned in row order.
func (r *RowEvaluator) Eval(ctx context.Context, e *Expr, n int, args ArgsFunc) ([]starlark.Value, error) {
	results := make([]starlark.Value, n)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)

	for start := 0; start < n; start += r.chunk {
		end := min(start+r.chunk, n)
		eg.Go(func() error {
			thread := r.pool.Get(e.Src)
			defer r.pool.Put(thread)
			for i := start; i < end; i++ {
				if err := egCtx.Err(); err != nil {
					return err
				}
				v, err := e.Call(thread, args(i)...)
				if err != nil {
					return err
				}
				results[i] = v
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
