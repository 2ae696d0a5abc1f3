package signaling

import (
	"context"
	"time"

	calljournal "CallCoordinator/internal/repository/call_journal"

	"github.com/rs/zerolog"
)

type recordJob struct {
	rec   calljournal.CallJournal
	flush chan struct{}
}

// Recorder writes call records to the durable store from a single worker, in
// the order they were queued. A full queue drops the write instead of blocking.
type Recorder struct {
	store   CallStore
	queue   chan recordJob
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRecorder(store CallStore, size int, timeout time.Duration, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		queue:   make(chan recordJob, size),
		timeout: timeout,
		logger:  logger.With().Str("worker", "recorder").Logger(),
	}
}

func (r *Recorder) Record(rec calljournal.CallJournal) bool {
	if r.store == nil {
		return false
	}
	select {
	case r.queue <- recordJob{rec: rec}:
		return true
	default:
		storeWriteResult("calls", "dropped")
		r.logger.Error().
			Str("call_id", rec.CallID).
			Str("status", rec.Status).
			Msg("recorder queue full, call record dropped")
		return false
	}
}

// Run applies queued writes until ctx ends, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case job := <-r.queue:
			r.apply(job)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case job := <-r.queue:
			r.apply(job)
		default:
			return
		}
	}
}

// Flush blocks until every write queued before it has been attempted.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.queue <- recordJob{flush: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) apply(job recordJob) {
	if job.flush != nil {
		close(job.flush)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.Append(ctx, job.rec)
	storeWrite("calls", err)
	if err != nil {
		r.logger.Error().Err(err).
			Str("call_id", job.rec.CallID).
			Str("status", job.rec.Status).
			Msg("persist call record")
	}
}
