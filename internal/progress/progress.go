package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
)

// Inspired by https://github.com/machinebox/progress/blob/master/progress.go.

// Evaluator facilitates progress monitoring.
type Evaluator interface {
	// Progress returns a total, a delta since its last call, and any error
	// encountered since the last call to Progress.
	Progress() (int64, int64, error)
}

// Progress is a message reporting a cumulative total and change since the
// last Progress message.
type Progress struct {
	// Total is the cumulative byte total.
	Total int64
	// Delta is the difference between Total and the previous message's Total.
	Delta int64
}

// Ticker holds a channel that delivers "ticks" of [Progress] at intervals.
type Ticker struct {
	C <-chan Progress
}

// NewTicker returns a [Ticker] reporting an [Evaluator]'s [Progress] on an interval.
func NewTicker(ctx context.Context, eval Evaluator, d time.Duration) *Ticker {
	ch := make(chan Progress)
	t := time.NewTicker(d)

	go func() {
		defer close(ch)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				total, delta, err := eval.Progress()
				p := Progress{
					Total: total,
					Delta: delta,
				}

				select {
				case ch <- p:
				case <-ctx.Done():
					return
				}
				if err != nil { // io.EOF, or other issues
					return
				}
			}
		}
	}()

	return &Ticker{C: ch}
}

// Report drains a ticker into the default logger until the transfer
// finishes or stop is called. The returned stop function waits for the
// reporting goroutine.
func Report(ctx context.Context, eval Evaluator, op string, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := NewTicker(ctx, eval, interval)
	var wg conc.WaitGroup
	wg.Go(func() {
		for p := range ticker.C {
			slog.InfoContext(ctx, "transfer progress", "op", op, "bytes", p.Total, "delta", p.Delta)
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}
}
