package seq2seq

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Runner spreads per-sample work over a fixed pool of goroutines. Each task
// builds its own graph, so the model weights are shared read-only while the
// gradients are merged under each parameter's lock.
type Runner struct {
	pool *ants.Pool
}

// NewRunner starts a pool of workers goroutines. One worker runs every task
// inline on the calling goroutine.
func NewRunner(workers int) (*Runner, error) {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{}
	if workers == 1 {
		return r, nil
	}
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, errors.Wrap(err, "worker pool")
	}
	r.pool = pool
	return r, nil
}

// Each calls fn(i) for i in [0, n) and waits for all calls. A panic in any
// call is re-raised on the caller once every call has finished.
func (r *Runner) Each(n int, fn func(i int)) {
	if r.pool == nil {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var (
		wg     sync.WaitGroup
		once   sync.Once
		failed any
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					once.Do(func() { failed = p })
				}
			}()
			fn(i)
		}
		if err := r.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if failed != nil {
		panic(failed)
	}
}

// Release stops the pool.
func (r *Runner) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}
