package peers

import "context"

// Sequence is a single-consumer job queue: callers Enqueue and continue,
// jobs apply strictly in enqueue order on one background goroutine. Both
// dbSequence (peer upserts/bans/seed inserts) and balancesSequence
// (receiveTransactions) are instances of this same type.
type Sequence struct {
	jobs chan func()
	done chan struct{}
}

// NewSequence starts the background worker. depth bounds how many pending
// jobs may be queued before Enqueue blocks the caller.
func NewSequence(depth int) *Sequence {
	if depth <= 0 {
		depth = 256
	}
	s := &Sequence{
		jobs: make(chan func(), depth),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sequence) run() {
	defer close(s.done)
	for job := range s.jobs {
		job()
	}
}

// Enqueue schedules job to run after every previously enqueued job has
// completed. It never blocks on job execution, only on queue depth.
func (s *Sequence) Enqueue(job func()) {
	if job == nil {
		return
	}
	s.jobs <- job
}

// EnqueueWait schedules job and blocks until it has run, surfacing any
// error it returns. Seed bootstrap uses this; request-path writes stay
// fire-and-forget via Enqueue.
func (s *Sequence) EnqueueWait(ctx context.Context, job func() error) error {
	resultCh := make(chan error, 1)
	s.Enqueue(func() {
		resultCh <- job()
	})
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs and waits for the queue to drain.
func (s *Sequence) Close() {
	close(s.jobs)
	<-s.done
}
