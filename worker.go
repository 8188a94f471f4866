package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker fires sweep invocations on a fixed interval until asked to stop.
type Worker struct {
	Engine        Engine
	SweepInterval time.Duration

	Logger *zap.Logger
}

// Start runs the periodic sweep loop. Every tick launches an independent
// sweep; a sweep outlasting the interval does not delay the next tick,
// so invocations may overlap. That overlap is safe because claims skip
// rows locked by another in-flight sweep.
//
// When ctx is cancelled no new sweeps start, in-flight sweeps run to
// completion, then done is signalled.
func (w Worker) Start(ctx context.Context, done chan<- struct{}) {
	ticker := time.NewTicker(w.SweepInterval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			inFlight.Wait()
			done <- struct{}{}
			return
		case <-ticker.C:
		}

		inFlight.Add(1)
		go func() {
			defer inFlight.Done()

			if err := w.Engine.Sweep(context.Background()); err != nil {
				w.Logger.Error("failed while sweeping outbox", zap.Error(err))
			}
		}()
	}
}
