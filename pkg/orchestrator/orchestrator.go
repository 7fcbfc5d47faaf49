package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pricepilot/pkg/logger"
	"pricepilot/pkg/models"
)

const DefaultTaskTimeout = 6 * time.Second

// Source is one retail site queried during fan-out.
type Source interface {
	Name() string
	Search(ctx context.Context, query string) models.ProductResult
}

// Orchestrator runs every registered source concurrently on a shared pool
// sized to the source count.
type Orchestrator struct {
	sources []Source
	pool    *Pool
	timeout time.Duration
}

func New(sources []Source, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Orchestrator{
		sources: sources,
		pool:    NewPool(len(sources)),
		timeout: timeout,
	}
}

func (o *Orchestrator) Sources() []string {
	names := make([]string, len(o.sources))
	for i, s := range o.sources {
		names[i] = s.Name()
	}
	return names
}

// RunAll returns exactly one result per source in completion order.
// Failures, panics and timeouts become error-tagged results; the only error
// returned is an infrastructure fault such as a closed pool.
func (o *Orchestrator) RunAll(ctx context.Context, query string) ([]models.ProductResult, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]models.ProductResult, 0, len(o.sources))
	)
	collect := func(r models.ProductResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	for _, src := range o.sources {
		taskCtx, cancel := context.WithTimeout(ctx, o.timeout)
		done := make(chan models.ProductResult, 1)

		err := o.pool.Submit(taskCtx, func() {
			defer cancel()
			done <- runTask(taskCtx, src, query)
		})
		if errors.Is(err, models.ErrPoolClosed) {
			cancel()
			wg.Wait()
			return nil, err
		}
		if err != nil {
			cancel()
			collect(interrupted(src.Name(), err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			select {
			case r := <-done:
				collect(r)
			case <-taskCtx.Done():
				// The task cancels its context right after delivering.
				select {
				case r := <-done:
					collect(r)
					return
				default:
				}
				// Abandoned: the task finishes against its canceled context
				// and done is buffered, so the worker never blocks.
				collect(interrupted(src.Name(), taskCtx.Err()))
			}
		}()
	}

	wg.Wait()
	return results, nil
}

// Close releases the pool; abandoned tasks finish against canceled contexts.
func (o *Orchestrator) Close() {
	o.pool.Close()
}

func runTask(ctx context.Context, src Source, query string) (res models.ProductResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.SourceDedup(src.Name(), "Task panicked: %v", r)
			res = models.FailedResult(src.Name(), fmt.Sprint(r))
		}
	}()

	res = src.Search(ctx, query)
	if res.Source == "" {
		res.Source = src.Name()
	}
	return res
}

func interrupted(source string, err error) models.ProductResult {
	if errors.Is(err, context.DeadlineExceeded) {
		logger.SourceDedup(source, "Timed out")
		return models.FailedResult(source, models.ErrTextTimeout)
	}
	return models.FailedResult(source, err.Error())
}
