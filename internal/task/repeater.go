// Package task repeats suite runs on a fixed interval for synthetic monitoring.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRepeatInterval = 15 * time.Minute

// IterationFunc runs one iteration. Its error is logged and does not stop the repeater.
type IterationFunc func(ctx context.Context, iteration int) error

// Repeater runs an iteration immediately on Start and then every interval
// until stopped, the context ends, or the iteration limit is reached.
type Repeater struct {
	interval      time.Duration
	maxIterations int
	iteration     IterationFunc
	logger        *zap.Logger
	trigger       chan struct{}
	controlMutex  sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{}
	statsMutex    sync.Mutex
	completed     int
	failed        int
}

// NewRepeater builds a repeater. A non-positive interval falls back to 15
// minutes; maxIterations of zero repeats until stopped.
func NewRepeater(interval time.Duration, maxIterations int, iteration IterationFunc, logger *zap.Logger) *Repeater {
	if interval <= 0 {
		interval = defaultRepeatInterval
	}
	if maxIterations < 0 {
		maxIterations = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repeater{
		interval:      interval,
		maxIterations: maxIterations,
		iteration:     iteration,
		logger:        logger,
		trigger:       make(chan struct{}, 1),
	}
}

// Start launches the repeat loop. Calling Start on a running repeater does nothing.
func (repeater *Repeater) Start(ctx context.Context) {
	if repeater == nil || repeater.iteration == nil {
		return
	}
	repeater.controlMutex.Lock()
	if repeater.cancel != nil {
		repeater.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	repeater.cancel = cancel
	done := make(chan struct{})
	repeater.done = done
	repeater.controlMutex.Unlock()

	go repeater.loop(runtimeCtx, done)
}

// Trigger requests an extra iteration without waiting for the interval.
func (repeater *Repeater) Trigger() {
	if repeater == nil {
		return
	}
	select {
	case repeater.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the running iteration to return.
func (repeater *Repeater) Stop() {
	if repeater == nil {
		return
	}
	repeater.controlMutex.Lock()
	cancel := repeater.cancel
	done := repeater.done
	repeater.cancel = nil
	repeater.done = nil
	repeater.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed when the loop exits on its own or after Stop.
func (repeater *Repeater) Done() <-chan struct{} {
	repeater.controlMutex.Lock()
	defer repeater.controlMutex.Unlock()
	if repeater.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return repeater.done
}

// Stats reports how many iterations completed and how many of them failed.
func (repeater *Repeater) Stats() (completed int, failed int) {
	repeater.statsMutex.Lock()
	defer repeater.statsMutex.Unlock()
	return repeater.completed, repeater.failed
}

func (repeater *Repeater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if !repeater.run(ctx) {
		return
	}

	timer := time.NewTimer(repeater.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-repeater.trigger:
		case <-timer.C:
		}
		if !repeater.run(ctx) {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(repeater.interval)
	}
}

// run executes one iteration and reports whether the loop should continue.
func (repeater *Repeater) run(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	repeater.statsMutex.Lock()
	number := repeater.completed + 1
	repeater.statsMutex.Unlock()

	started := time.Now()
	iterationErr := repeater.iteration(ctx, number)

	repeater.statsMutex.Lock()
	repeater.completed = number
	if iterationErr != nil {
		repeater.failed++
	}
	repeater.statsMutex.Unlock()

	if iterationErr != nil {
		repeater.logger.Warn("repeat_iteration_failed", zap.Int("iteration", number), zap.Duration("duration", time.Since(started)), zap.Error(iterationErr))
	} else {
		repeater.logger.Info("repeat_iteration_passed", zap.Int("iteration", number), zap.Duration("duration", time.Since(started)))
	}
	if repeater.maxIterations > 0 && number >= repeater.maxIterations {
		return false
	}
	return ctx.Err() == nil
}
