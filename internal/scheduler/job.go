package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const jobStopTimeout = 5 * time.Second

// Job runs fn on a fixed interval until stopped. Runs never overlap.
type Job struct {
	Name      string
	Interval  time.Duration
	CreatedAt int64

	fn func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJob creates a stopped Job.
func NewJob(name string, interval time.Duration, fn func(ctx context.Context)) *Job {
	return &Job{
		Name:      name,
		Interval:  interval,
		CreatedAt: time.Now().UnixMilli(),
		fn:        fn,
	}
}

func (j *Job) String() string {
	return j.Name
}

// Start launches the ticker goroutine. Starting a running job is a no-op.
func (j *Job) Start(parent context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	j.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(j.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.fn(ctx)
			}
		}
	}(j.done)
}

// Stop cancels the job and waits for an in-flight run to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(jobStopTimeout):
		slog.Warn("job did not stop in time", "job", j.Name, "timeout", jobStopTimeout)
	}
}
