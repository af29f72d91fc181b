package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/phuslu/log"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var ErrStressViolation = errors.New("stress: delivery guarantee violated")

type StressConfig struct {
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	Producers int    `json:"producers" yaml:"producers" mapstructure:"producers"`
	Consumers int    `json:"consumers" yaml:"consumers" mapstructure:"consumers"`
	Items     int    `json:"items" yaml:"items" mapstructure:"items"`
	// Dispose the queue after this long even if items are still in flight.
	// Zero waits for every item to be delivered.
	DisposeAfter time.Duration `json:"dispose_after" yaml:"dispose_after" mapstructure:"dispose_after"`

	// Progress receives a progress bar when set.
	Progress io.Writer `json:"-" yaml:"-" mapstructure:"-"`
}

func (sc StressConfig) Validate() error {
	if sc.Producers < 1 {
		return fmt.Errorf("producers must be at least 1")
	}
	if sc.Consumers < 1 {
		return fmt.Errorf("consumers must be at least 1")
	}
	if sc.Items < 0 {
		return fmt.Errorf("items must be non-negative")
	}
	if sc.DisposeAfter < 0 {
		return fmt.Errorf("dispose_after must be non-negative")
	}
	return nil
}

type StressItem struct {
	Producer int
	Seq      int
}

type StressReport struct {
	Name         string       `json:"name" yaml:"name"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	Config       StressConfig `json:"config" yaml:"config"`
	Pushed       int64        `json:"pushed" yaml:"pushed"`
	PushRejected int64        `json:"push_rejected" yaml:"push_rejected"`
	Popped       int64        `json:"popped" yaml:"popped"`
	PopRejected  int64        `json:"pop_rejected" yaml:"pop_rejected"`
	// Accepted items never delivered because the queue was disposed first.
	Residual   int           `json:"residual" yaml:"residual"`
	Duplicates int           `json:"duplicates" yaml:"duplicates"`
	OutOfOrder int           `json:"out_of_order" yaml:"out_of_order"`
	Lost       int           `json:"lost" yaml:"lost"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Violations []string      `json:"violations,omitempty" yaml:"violations,omitempty"`
}

func (r *StressReport) OK() bool {
	return len(r.Violations) == 0
}

// RunStress runs producers and consumers against one DisposableQueue and
// checks that every accepted item was delivered at most once, that items
// were only left behind by disposal, and that each consumer saw every
// producer's items in order. Violations are returned wrapped in
// ErrStressViolation alongside the report.
func RunStress(ctx context.Context, cfg StressConfig) (StressReport, error) {
	if err := cfg.Validate(); err != nil {
		return StressReport{}, err
	}
	report := StressReport{
		Name:      cfg.Name,
		StartedAt: time.Now(),
		Config:    cfg,
	}

	q := NewDisposableQueue[StressItem]()
	pushed := atomic.NewInt64(0)
	pushRejected := atomic.NewInt64(0)
	popped := atomic.NewInt64(0)
	popRejected := atomic.NewInt64(0)

	bar := progressbar.DefaultSilent(int64(cfg.Items))
	if cfg.Progress != nil {
		bar = progressbar.NewOptions64(int64(cfg.Items),
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionSetDescription("popping"),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	if cfg.Items == 0 {
		q.Dispose()
	}
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		var deadline <-chan time.Time
		if cfg.DisposeAfter > 0 {
			timer := time.NewTimer(cfg.DisposeAfter)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-deadline:
			log.Debug().Msgf("Disposing queue after %s", cfg.DisposeAfter)
		case <-ctx.Done():
			log.Debug().Msgf("Disposing queue: %v", ctx.Err())
		case <-stopWatch:
			return
		case <-q.Done():
			return
		}
		q.Dispose()
	}()

	received := make([][]StressItem, cfg.Consumers)
	consumers := pool.New().WithMaxGoroutines(cfg.Consumers)
	for c := 0; c < cfg.Consumers; c++ {
		consumers.Go(func() {
			for {
				item, err := q.Pop()
				if err != nil {
					popRejected.Inc()
					return
				}
				received[c] = append(received[c], item)
				bar.Add(1)
				if popped.Inc() == int64(cfg.Items) {
					q.Dispose()
				}
			}
		})
	}

	var producers conc.WaitGroup
	for p := 0; p < cfg.Producers; p++ {
		share := cfg.Items / cfg.Producers
		if p < cfg.Items%cfg.Producers {
			share++
		}
		producers.Go(func() {
			for seq := 0; seq < share; seq++ {
				if err := q.Push(StressItem{Producer: p, Seq: seq}); err != nil {
					pushRejected.Add(int64(share - seq))
					return
				}
				pushed.Inc()
			}
		})
	}

	producers.Wait()
	consumers.Wait()
	bar.Finish()

	report.Pushed = pushed.Load()
	report.PushRejected = pushRejected.Load()
	report.Popped = popped.Load()
	report.PopRejected = popRejected.Load()
	report.Residual = q.Len()
	report.Elapsed = time.Since(report.StartedAt)

	err := verifyDeliveries(&report, received)
	log.Info().Msgf("Stress %q: pushed %d, popped %d, residual %d, %d violations in %s",
		report.Name, report.Pushed, report.Popped, report.Residual, len(report.Violations), report.Elapsed)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrStressViolation, err)
	}
	return report, nil
}

func verifyDeliveries(report *StressReport, received [][]StressItem) error {
	var errs error
	seen := make(map[StressItem]int)
	for consumer, items := range received {
		lastSeq := make(map[int]int)
		for _, item := range items {
			seen[item]++
			if seen[item] == 2 {
				report.Duplicates++
				errs = multierr.Append(errs, fmt.Errorf("item %d/%d delivered more than once", item.Producer, item.Seq))
			}
			if last, ok := lastSeq[item.Producer]; ok && item.Seq <= last {
				report.OutOfOrder++
				errs = multierr.Append(errs, fmt.Errorf("consumer %d received item %d/%d after %d/%d", consumer, item.Producer, item.Seq, item.Producer, last))
			}
			lastSeq[item.Producer] = item.Seq
		}
	}
	delivered := int64(len(seen))
	if lost := report.Pushed - delivered - int64(report.Residual); lost != 0 {
		report.Lost = int(lost)
		errs = multierr.Append(errs, fmt.Errorf("%d accepted items neither delivered nor left in the queue", lost))
	}
	for _, err := range multierr.Errors(errs) {
		report.Violations = append(report.Violations, err.Error())
	}
	return errs
}
