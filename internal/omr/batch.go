package omr

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"

	"omr-scanner/internal/page"
)

// ProcessBatch reads pages on a pool of workers (runtime.NumCPU when workers <= 0)
// and yields the results in input order as they become available. A page that fails
// yields its error and the batch continues. Breaking out of the loop stops the pool;
// if ctx is cancelled the sequence ends with ctx's error.
func (p *Processor) ProcessBatch(ctx context.Context, pages iter.Seq[page.Source], workers int) iter.Seq2[*PageResult, error] {
	return func(yield func(*PageResult, error) bool) {
		if workers <= 0 {
			workers = runtime.NumCPU()
		}

		batchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type job struct {
			index int
			src   page.Source
		}
		type outcome struct {
			index  int
			result *PageResult
			err    error
		}

		jobs := make(chan job)
		outcomes := make(chan outcome, workers)

		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range jobs {
					result, err := p.processSource(batchCtx, j.src)
					select {
					case outcomes <- outcome{index: j.index, result: result, err: err}:
					case <-batchCtx.Done():
						return
					}
				}
			}()
		}

		go func() {
			defer close(jobs)
			index := 0
			for src := range pages {
				select {
				case jobs <- job{index: index, src: src}:
				case <-batchCtx.Done():
					return
				}
				index++
			}
		}()

		go func() {
			wg.Wait()
			close(outcomes)
		}()

		pending := make(map[int]outcome)
		next := 0
		for o := range outcomes {
			pending[o.index] = o
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if !yield(ready.result, ready.err) {
					return
				}
			}
		}

		if err := ctx.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// processSource reads one page, turning a panic into an error so one bad page does
// not take the batch down.
func (p *Processor) processSource(ctx context.Context, src page.Source) (result *PageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%s page %d: panic: %v", src.Path, src.Number, r)
		}
	}()

	result, err = p.ProcessPage(ctx, src.Image, src.Number)
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", src.Path, src.Number, err)
	}
	result.Source = src.Path
	return result, nil
}
