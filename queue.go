package antrean

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// unlimitedDrainInterval is the dispatch cadence when the rate window is
// unlimited and no interval can be derived from the cap.
const unlimitedDrainInterval = 10 * time.Millisecond

// pendingResult settles exactly once: when the queued request has been
// dispatched and the transport call completed, or when the client is closed
// while the request is still waiting.
type pendingResult struct {
	mu   sync.Mutex
	resp *http.Response
	err  error
	done chan struct{}
}

func newPendingResult() *pendingResult {
	return &pendingResult{done: make(chan struct{})}
}

func (p *pendingResult) complete(resp *http.Response, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}

	p.resp = resp
	p.err = err
	close(p.done)
}

// Wait blocks until the result settles or the context cancels.
func (p *pendingResult) Wait(ctx context.Context) (*http.Response, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// queuedRequest is one FIFO entry awaiting dispatch.
type queuedRequest struct {
	req     *http.Request
	pending *pendingResult
}

// requestScheduler owns the FIFO queue and the fixed rate window. A dispatch
// ticker pops at most one entry per tick while window budget remains; an
// independent reset ticker zeroes the window count once per window. The two
// cadences never share a timer.
type requestScheduler struct {
	capacity int           // UnlimitedRequests = no cap
	window   time.Duration // 60s in production, shortened in tests

	mu     sync.Mutex
	queue  []*queuedRequest
	used   int // dispatches counted in the current window
	closed bool

	dispatch func(*queuedRequest)
	// deferred, when set, is invoked on a tick that found work but no
	// window budget.
	deferred func()

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newRequestScheduler(capacity int, window time.Duration, dispatch func(*queuedRequest)) *requestScheduler {
	if window <= 0 {
		window = time.Minute
	}
	return &requestScheduler{
		capacity: capacity,
		window:   window,
		dispatch: dispatch,
		stop:     make(chan struct{}),
	}
}

// tickInterval derives the dispatch cadence from the cap. The unlimited
// sentinel is special-cased so it is never used as a divisor.
func (s *requestScheduler) tickInterval() time.Duration {
	if s.capacity <= 0 {
		return unlimitedDrainInterval
	}
	interval := s.window / time.Duration(s.capacity)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

func (s *requestScheduler) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *requestScheduler) run() {
	defer s.wg.Done()

	dispatchTick := time.NewTicker(s.tickInterval())
	defer dispatchTick.Stop()

	// The window-reset timer only exists for a bounded cap.
	var resetC <-chan time.Time
	if s.capacity > 0 {
		resetTick := time.NewTicker(s.window)
		defer resetTick.Stop()
		resetC = resetTick.C
	}

	for {
		select {
		case <-dispatchTick.C:
			s.dispatchOne()
		case <-resetC:
			s.resetWindow()
		case <-s.stop:
			return
		}
	}
}

// enqueue appends a request to the queue tail and returns its result handle.
func (s *requestScheduler) enqueue(req *http.Request) (*pendingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClientClosed
	}

	entry := &queuedRequest{req: req, pending: newPendingResult()}
	s.queue = append(s.queue, entry)
	return entry.pending, nil
}

// dispatchOne hands the head entry to the transport iff the queue is
// non-empty AND (the cap is unlimited OR the window still has budget).
func (s *requestScheduler) dispatchOne() {
	s.mu.Lock()
	if s.closed || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	if s.capacity > 0 && s.used >= s.capacity {
		deferred := s.deferred
		s.mu.Unlock()
		if deferred != nil {
			deferred()
		}
		return
	}

	entry := s.queue[0]
	s.queue = s.queue[1:]
	s.used++
	s.mu.Unlock()

	go s.dispatch(entry)
}

func (s *requestScheduler) resetWindow() {
	s.mu.Lock()
	s.used = 0
	s.mu.Unlock()
}

// depth returns the number of entries still waiting for dispatch.
func (s *requestScheduler) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// windowUsed returns the dispatch count in the current window.
func (s *requestScheduler) windowUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// close stops both timers and force-fails every still-queued entry. Entries
// already handed to the transport settle normally.
func (s *requestScheduler) close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	drained := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, entry := range drained {
		entry.pending.complete(nil, ErrClientClosed)
	}

	s.wg.Wait()
}
