package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/phuslu/log"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

const maxLineSize = 1024 * 1024

type PipelineConfig struct {
	Workers int
}

func (pc PipelineConfig) Validate() error {
	if pc.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", pc.Workers)
	}
	return nil
}

type InputLine struct {
	Line    int
	Content string
}

type PipelineStats struct {
	Read      int64
	Processed int64
	Failed    int64
	Emitted   int64
	Elapsed   time.Duration
}

type readResult struct {
	lines int
	err   error
}

// RunPipeline feeds every line of in through proc on cfg.Workers goroutines
// and writes the results to out in input order. Lines proc fails on are
// replaced by an error description.
func RunPipeline(ctx context.Context, cfg PipelineConfig, proc LineProcessor, in io.Reader, out io.Writer) (PipelineStats, error) {
	if err := cfg.Validate(); err != nil {
		return PipelineStats{}, err
	}
	start := time.Now()

	read := atomic.NewInt64(0)
	processed := atomic.NewInt64(0)
	failed := atomic.NewInt64(0)
	emitted := int64(0)
	stats := func() PipelineStats {
		return PipelineStats{
			Read:      read.Load(),
			Processed: processed.Load(),
			Failed:    failed.Load(),
			Emitted:   emitted,
			Elapsed:   time.Since(start),
		}
	}

	inputQueue := NewDisposableQueue[InputLine]()
	completionQueue := NewOrderPreservingCompletionQueue[string]()
	completionChan := completionQueue.GetCompletionChan()
	terminationChan := make(chan readResult, 1)

	workers := pool.New().WithMaxGoroutines(cfg.Workers).WithErrors()
	for i := 0; i < cfg.Workers; i++ {
		workers.Go(func() error {
			for {
				line, err := inputQueue.Pop()
				if errors.Is(err, ErrDisposed) {
					return nil
				}
				result, err := proc.ProcessLine(line.Content)
				if err != nil {
					failed.Inc()
					result = fmt.Sprintf("Line %d: %v", line.Line+1, err)
				}
				processed.Inc()
				if err := completionQueue.Push(line.Line, result); err != nil {
					if errors.Is(err, ErrDisposed) {
						return nil
					}
					return fmt.Errorf("line %d: %w", line.Line+1, err)
				}
			}
		})
	}

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			oldRead := read.Inc() - 1
			if err := inputQueue.Push(InputLine{Line: int(oldRead), Content: scanner.Text()}); err != nil {
				read.Dec()
				terminationChan <- readResult{lines: int(read.Load()), err: err}
				return
			}
		}
		terminationChan <- readResult{lines: int(read.Load()), err: scanner.Err()}
	}()

	shutdown := func() error {
		inputQueue.Dispose()
		completionQueue.Close()
		return workers.Wait()
	}

	var runErr error
	terminated := false
	total := 0
	for !terminated || int(emitted) < total {
		select {
		case line, ok := <-completionChan:
			if !ok {
				return stats(), multierr.Append(runErr, shutdown())
			}
			if _, err := io.WriteString(out, line+"\n"); err != nil {
				runErr = multierr.Append(runErr, fmt.Errorf("error writing output: %w", err))
				return stats(), multierr.Append(runErr, shutdown())
			}
			emitted++
		case res := <-terminationChan:
			terminated = true
			total = res.lines
			if res.err != nil {
				runErr = multierr.Append(runErr, fmt.Errorf("error reading input: %w", res.err))
			}
			log.Debug().Msgf("Input finished after %d lines", total)
		case <-ctx.Done():
			log.Info().Msgf("Pipeline interrupted after emitting %d lines", emitted)
			runErr = multierr.Append(runErr, ctx.Err())
			return stats(), multierr.Append(runErr, shutdown())
		}
	}

	// every line has been emitted; disposal releases the idle workers
	runErr = multierr.Append(runErr, shutdown())
	return stats(), runErr
}
