package sync

import (
	"context"
	"sync"
	"time"
)

// Task is a handle on a periodic job started by Schedule.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Schedule runs fn once right away and then every interval until ctx is
// cancelled or Stop is called. A non-positive interval means DefaultInterval.
func Schedule(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for an in-flight run to return. fn is
// never called again once Stop returns. Calling Stop from inside fn deadlocks.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed when the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
