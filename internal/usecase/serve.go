package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// ServeInput contains the parameters of the dispatch loop.
type ServeInput struct {
	Run       RunTaskInput
	Interval  time.Duration
	MaxCycles int // 0 runs until ctx is done
}

// ServeOutput summarizes the loop once it stops.
type ServeOutput struct {
	Cycles    int
	Completed int // Cycles that finished a task
	Failed    int
}

// Serve runs RunTask on a fixed interval.
type Serve struct {
	run    *RunTask
	logger domain.Logger
}

// NewServe creates a new Serve use case around run.
func NewServe(run *RunTask) *Serve {
	return &Serve{run: run, logger: run.logger}
}

// Execute loops until ctx is done or MaxCycles is reached. A finished task
// starts the next cycle right away; otherwise the loop waits Interval.
// Cancellation is only observed between cycles.
func (uc *Serve) Execute(ctx context.Context, in ServeInput) (*ServeOutput, error) {
	if in.Interval <= 0 {
		return nil, fmt.Errorf("serve interval must be positive, got %s", in.Interval)
	}
	uc.logger.Info(0, "serve", fmt.Sprintf("dispatch loop started (every %s)", in.Interval))

	out := &ServeOutput{}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			uc.logger.Info(0, "serve", "dispatch loop stopped")
			return out, nil
		case <-timer.C:
		}

		wait := in.Interval
		res, err := uc.run.Execute(context.WithoutCancel(ctx), in.Run)
		out.Cycles++
		switch {
		case err != nil:
			out.Failed++
			uc.logger.Error(0, "serve", err.Error())
		case res.Status == RunDone:
			out.Completed++
			wait = 0
		}

		if in.MaxCycles > 0 && out.Cycles >= in.MaxCycles {
			return out, nil
		}
		timer.Reset(wait)
	}
}
