package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/payrail/payrail/internal/domain/model"
)

// errCancelled is the cancel cause set by Cancel so the lifecycle can tell
// a caller-requested stop from an ordinary context error.
var errCancelled = errors.New("cancelled by caller")

// flight is one in-progress payment. The first submitter for a request ID
// owns the flight and runs the lifecycle; later submitters join it and wait
// for the same outcome. The flight context is detached from the submitter's
// so an accepted payment survives client disconnects; only Cancel (before
// execution) stops it.
type flight struct {
	requestID string
	ctx       context.Context
	cancel    context.CancelCauseFunc
	done      chan struct{}

	mu        sync.Mutex
	status    model.PaymentStatus
	trail     []model.PaymentStatus
	executing bool
	cancelled bool

	// set exactly once before done is closed
	outcome model.PaymentOutcome
	err     error

	completeOnce sync.Once
}

func newFlight(requestID string) *flight {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &flight{
		requestID: requestID,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    model.StatusCreated,
		trail:     []model.PaymentStatus{model.StatusCreated},
	}
}

func (f *flight) setStatus(s model.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
	f.trail = append(f.trail, s)
}

func (f *flight) currentStatus() model.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// statusTrail returns every status the flight has passed through, in order.
func (f *flight) statusTrail() []model.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PaymentStatus(nil), f.trail...)
}

// beginExecuting moves the flight past the point of no return. It fails if
// the flight was already cancelled, in which case no transfer may start.
func (f *flight) beginExecuting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return false
	}
	f.executing = true
	f.status = model.StatusExecuting
	f.trail = append(f.trail, model.StatusExecuting)
	return true
}

// tryCancel requests cancellation. It reports false once execution has
// begun: a submitted transfer cannot be recalled.
func (f *flight) tryCancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.executing {
		return false
	}
	if !f.cancelled {
		f.cancelled = true
		f.cancel(errCancelled)
	}
	return true
}

func (f *flight) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// complete publishes the outcome to everyone waiting on the flight.
func (f *flight) complete(outcome model.PaymentOutcome, err error) {
	f.completeOnce.Do(func() {
		f.outcome = outcome
		f.err = err
		// Pre-lifecycle rejections complete with a zero outcome; the flight
		// keeps its last real status.
		if outcome.Status != "" {
			f.setStatus(outcome.Status)
		}
		close(f.done)
	})
}

// wait blocks until the flight completes or the waiter's own context ends.
// All waiters observe the identical outcome.
func (f *flight) wait(ctx context.Context) (model.PaymentOutcome, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return model.PaymentOutcome{}, ctx.Err()
	}
}

// flightRegistry tracks active request IDs so concurrent duplicates join
// one lifecycle instead of racing the chain.
type flightRegistry struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{flights: make(map[string]*flight)}
}

// joinOrStart returns the active flight for requestID, reporting whether the
// caller joined an existing one (true) or now owns a new one (false).
func (r *flightRegistry) joinOrStart(requestID string) (*flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.flights[requestID]; ok {
		return f, true
	}
	f := newFlight(requestID)
	r.flights[requestID] = f
	return f, false
}

func (r *flightRegistry) get(requestID string) (*flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flights[requestID]
	return f, ok
}

func (r *flightRegistry) remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flights, requestID)
}

func (r *flightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}
