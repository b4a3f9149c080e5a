// Package dispatcher implements the Dispatcher: the cooperative task that
// pairs queued requests with routable endpoints and hands them to workers
// for transport. The original dispatcher was a single glib main-loop
// callback re-armed with a 0-delay timeout (arkime_http_schedule); this
// package reproduces that "run again as soon as there might be work"
// pacing with a buffered wake channel instead of an idle timer, and
// applies a job-channel/worker-goroutine pool shape to request transport
// instead of periodic health checks.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkime/httppool/internal/adapter/queue"
	"github.com/arkime/httppool/internal/adapter/ring"
	"github.com/arkime/httppool/internal/adapter/transport"
	"github.com/arkime/httppool/internal/core/domain"
	"github.com/arkime/httppool/internal/core/ports"
)

// Doer is the subset of transport.Transport the dispatcher depends on,
// kept as an interface so tests can substitute a fake without standing up
// real sockets.
type Doer interface {
	Do(ctx context.Context, method, url string, body []byte, headers []domain.Header) transport.Result
}

// Config bundles the knobs §4.1/§4.2 tie to admission and retry.
type Config struct {
	Workers                int
	MaxOutstandingRequests int // Dropable threshold; Normal's is 2x this
	CoolDownSeconds        int64
	Logger                 ports.Logger

	// OnCoolDown, if set, fires on the loop goroutine whenever an endpoint
	// enters cool-down after a transport failure, so a Server can publish
	// domain.EventEndpointCoolingDown without the dispatcher needing to
	// know anything about the event bus itself.
	OnCoolDown func(endpointIdx int, endpointName string, err error)
}

type job struct {
	req         *domain.Request
	endpointIdx int
	url         string
}

type completion struct {
	j      job
	result transport.Result
}

// Dispatcher is the running pool: one loop goroutine owning the Ring
// exclusively (so it needs no lock, per §5) and popping from the Queue,
// which submitters also push to under the Queue's own mutex, plus a fixed
// pool of worker goroutines executing transport round trips concurrently.
type Dispatcher struct {
	q    *queue.Queue
	ring *ring.Ring
	doer Doer
	cfg  Config

	jobCh        chan job
	completionCh chan completion
	wakeCh       chan struct{}
	stopCh       chan struct{}
	idleCh       chan struct{}
	wg           sync.WaitGroup

	outstanding atomic.Int64
	dropped     atomic.Int64
	quitting    atomic.Bool
}

// New builds a Dispatcher over q and r, dispatching work to doer. Start
// must be called before Enqueue has any effect beyond buffering.
func New(q *queue.Queue, r *ring.Ring, doer Doer, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	return &Dispatcher{
		q:            q,
		ring:         r,
		doer:         doer,
		cfg:          cfg,
		jobCh:        make(chan job, cfg.Workers),
		completionCh: make(chan completion, cfg.Workers),
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		idleCh:       make(chan struct{}, 1),
	}
}

// Start launches the loop goroutine and the worker pool.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop quiesces admission, drives the loop and workers until every
// queued and in-flight request has reached a terminal outcome
// (Outstanding() == 0), then tears both down (§5 Cancellation). Since
// Quiesce bypasses the drop thresholds, any final flush submitted during
// shutdown is admitted and drained rather than refused.
func (d *Dispatcher) Stop() {
	d.Quiesce()

	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
	<-d.idleCh

	close(d.stopCh)
	d.wg.Wait()
}

// Quiesce marks the dispatcher as draining: admission's drop thresholds
// are bypassed so in-flight shutdown flushes are never rejected, mirroring
// the "quitting" flag §4.2 and §6 describe. It does not stop the loop or
// worker pool by itself; call Stop to tear those down once draining
// completes.
func (d *Dispatcher) Quiesce() { d.quitting.Store(true) }

// Enqueue applies admission control and, if accepted, pushes req onto the
// PriorityQueue and wakes the loop. It reports whether the request was
// accepted; a false return means the caller's Callback will never fire.
func (d *Dispatcher) Enqueue(req *domain.Request) bool {
	quitting := d.quitting.Load()
	out := d.outstanding.Load()
	switch req.Priority {
	case domain.Dropable:
		if !quitting && d.cfg.MaxOutstandingRequests > 0 && out > int64(d.cfg.MaxOutstandingRequests) {
			d.dropped.Add(1)
			return false
		}
	case domain.Normal:
		if !quitting && d.cfg.MaxOutstandingRequests > 0 && out > 2*int64(d.cfg.MaxOutstandingRequests) {
			d.dropped.Add(1)
			return false
		}
	case domain.High:
		// High priority (including the SyncChannel path) is never
		// admission-dropped, per §4.2.
	}

	d.outstanding.Add(1)
	d.q.Enqueue(req)

	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// QueueLength reports the number of requests currently queued but not yet
// handed to a worker.
func (d *Dispatcher) QueueLength() int { return d.q.Len() }

// DroppedCount reports the cumulative number of requests rejected by
// admission control since the dispatcher started.
func (d *Dispatcher) DroppedCount() int64 { return d.dropped.Load() }

// Outstanding reports the number of requests accepted but not yet
// terminally resolved (succeeded, or exhausted their retries).
func (d *Dispatcher) Outstanding() int64 { return d.outstanding.Load() }

// loop is the sole owner of d.ring and the only goroutine that pops d.q:
// it drains the queue into jobCh, re-waking whenever Enqueue signals new work, and applies
// cool-down/retry decisions as completions arrive.
func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case c := <-d.completionCh:
			d.handleCompletion(c)
		case <-d.wakeCh:
			d.drain()
		}
		d.signalIdleIfQuitting()
	}
}

// signalIdleIfQuitting notifies a blocked Stop once quiescence has drained
// every admitted request to a terminal outcome. Called after every loop
// iteration so Stop's forced wake always gets a fresh idle check even when
// Outstanding was already 0 at the moment quitting was set.
func (d *Dispatcher) signalIdleIfQuitting() {
	if d.quitting.Load() && d.outstanding.Load() == 0 {
		select {
		case d.idleCh <- struct{}{}:
		default:
		}
	}
}

func (d *Dispatcher) drain() {
	for d.q.Len() > 0 {
		req := d.q.Pop()
		if req == nil {
			return
		}

		now := time.Now().Unix()
		idx := d.ring.Pick(now)
		url := d.ring.BuildURL(idx, req.KeyTail)
		j := job{req: req, endpointIdx: idx, url: url}

		for placed := false; !placed; {
			select {
			case d.jobCh <- j:
				placed = true
			case c := <-d.completionCh:
				d.handleCompletion(c)
			case <-d.stopCh:
				return
			}
		}
	}
}

// handleCompletion applies the endpoint cool-down and retry policy for a
// finished attempt. It runs only on the loop goroutine, so Ring mutation
// here needs no lock.
func (d *Dispatcher) handleCompletion(c completion) {
	res := c.result
	retryable := res.Status == 0

	// Only cool the endpoint down when a retry will actually follow: a
	// Dropable or retries-exhausted failure delivers straight to the
	// callback without penalizing the endpoint for a request nothing
	// will resubmit to it.
	if retryable && c.j.req.RetriesLeft > 0 {
		d.ring.CoolDown(c.j.endpointIdx, time.Now().Unix(), d.cfg.CoolDownSeconds)
		endpointName := d.ring.Endpoint(c.j.endpointIdx).Name
		d.cfg.Logger.Logf("dispatcher: endpoint %q cooling down after transport failure: %v",
			endpointName, res.Err)
		if d.cfg.OnCoolDown != nil {
			d.cfg.OnCoolDown(c.j.endpointIdx, endpointName, res.Err)
		}

		c.j.req.RetriesLeft--
		d.q.Enqueue(c.j.req)
		select {
		case d.wakeCh <- struct{}{}:
		default:
		}
		return
	}

	d.outstanding.Add(-1)
	// The callback runs on the loop goroutine (§4.3/§5): a callback that
	// blocks stalls dispatch of other requests until it returns.
	deliver(c.j.req, res)
}

// worker executes transport round trips and reports the outcome back to
// the loop over completionCh. The loop decides retry vs. terminal
// delivery, since that decision also mutates the Ring and must stay on
// the single goroutine that owns it lock-free.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case j := <-d.jobCh:
			ctx, cancel := context.WithTimeout(context.Background(), transport.ResponseTimeout)
			res := d.doer.Do(ctx, j.req.Method, j.url, j.req.Body, j.req.Headers)
			cancel()

			select {
			case d.completionCh <- completion{j: j, result: res}:
			case <-d.stopCh:
				return
			}
		}
	}
}

// deliver invokes a request's callback exactly once, for a terminal
// outcome only. Non-retryable HTTP responses (including 5xx) are
// delivered verbatim per §4.3's retry classification.
func deliver(req *domain.Request, res transport.Result) {
	if req.Callback == nil {
		return
	}
	req.Callback(res.Status, res.Body, req.Userdata)
}
