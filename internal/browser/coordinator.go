package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/gg/gmap"

	"github.com/streamwatch/streamwatch/internal/pkg/logs"
)

const (
	requestBuffer     = 16
	vacatePollPeriod  = 200 * time.Millisecond
	defaultVacateWait = 10 * time.Second
	defaultSettle     = 3 * time.Second
)

// LaunchRequest asks the coordinator for one browser session.
type LaunchRequest struct {
	URL           string
	CorrelationID string
	Prefs         Preferences
}

type launchResult struct {
	session *Session
	err     error
}

type launchTicket struct {
	req  LaunchRequest
	done chan launchResult // buffered, worker never blocks on it
}

// CoordinatorOptions tune the admission worker's teardown waits.
type CoordinatorOptions struct {
	// VacateTimeout bounds how long the worker waits for a prior session's
	// process to vacate before admitting the next request.
	VacateTimeout time.Duration
	// SettleDelay is a fixed buffer after vacating, before the next launch.
	SettleDelay time.Duration
}

// Coordinator serializes browser launches so that at most one session is
// ever live, no matter how many schedules become due in the same tick.
// Callers block only on their own request's completion; admission order is
// first-submitted-first-served.
type Coordinator struct {
	ctrl          Controller
	vacateTimeout time.Duration
	settleDelay   time.Duration

	requests chan *launchTicket

	mu      sync.Mutex
	states  map[string]SessionState
	current string // correlation id of the tracked live session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator over the given controller. Call Start
// before submitting launches.
func NewCoordinator(ctrl Controller, opts CoordinatorOptions) *Coordinator {
	if opts.VacateTimeout <= 0 {
		opts.VacateTimeout = defaultVacateWait
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = defaultSettle
	}
	return &Coordinator{
		ctrl:          ctrl,
		vacateTimeout: opts.VacateTimeout,
		settleDelay:   opts.SettleDelay,
		requests:      make(chan *launchTicket, requestBuffer),
		states:        make(map[string]SessionState),
	}
}

// Start launches the single admission worker.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.worker(ctx)
	}()
	logs.CtxInfo(ctx, "[browser] launch coordinator started")
}

// Stop cancels the worker and waits for it, bounded by ctx.
func (c *Coordinator) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logs.CtxWarn(ctx, "[browser] stop timed out waiting for launch worker")
	}
}

// Launch submits a request and blocks until the worker resolves it or ctx is
// canceled. Submitters never block each other directly; only the worker's
// serialized draining orders them.
func (c *Coordinator) Launch(ctx context.Context, req LaunchRequest) (*Session, error) {
	if req.CorrelationID == "" {
		return nil, fmt.Errorf("launch request requires a correlation id")
	}

	ticket := &launchTicket{req: req, done: make(chan launchResult, 1)}
	c.setState(req.CorrelationID, StateQueued)

	select {
	case c.requests <- ticket:
	case <-ctx.Done():
		c.clearState(req.CorrelationID)
		return nil, ctx.Err()
	}

	select {
	case res := <-ticket.done:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release closes the session for the given correlation id and frees the
// single-flight slot. The id drops out of state tracking; untracked ids
// read as absent. Safe to call for ids that are already gone.
func (c *Coordinator) Release(correlationID string) {
	if err := c.ctrl.Close(correlationID); err != nil {
		logs.Warn("[browser] close session %s: %v", correlationID, err)
	}

	c.mu.Lock()
	if c.current == correlationID {
		c.current = ""
	}
	delete(c.states, correlationID)
	c.mu.Unlock()
}

// State reports the launch lifecycle state for a correlation id.
func (c *Coordinator) State(correlationID string) SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[correlationID]; ok {
		return st
	}
	return StateAbsent
}

// States returns a snapshot of all tracked correlation ids.
func (c *Coordinator) States() map[string]SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gmap.Clone(c.states)
}

func (c *Coordinator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ticket := <-c.requests:
			c.process(ctx, ticket)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, ticket *launchTicket) {
	id := ticket.req.CorrelationID
	c.setState(id, StateLaunching)
	logs.CtxInfo(ctx, "[browser] launching %s (was queued)", id)

	c.ensureVacated(ctx)
	if ctx.Err() != nil {
		c.clearState(id)
		ticket.done <- launchResult{err: ctx.Err()}
		return
	}

	sess, err := c.ctrl.Start(ctx, ticket.req.URL, id, ticket.req.Prefs)
	if err != nil {
		c.clearState(id)
		ticket.done <- launchResult{err: fmt.Errorf("start browser %s: %w", id, err)}
		return
	}

	c.mu.Lock()
	c.states[id] = StateRunning
	c.current = id
	c.mu.Unlock()

	ticket.done <- launchResult{session: sess}
}

// ensureVacated forces closure of any still-tracked prior session and waits,
// bounded, for the controller to report it absent, then a settle delay.
func (c *Coordinator) ensureVacated(ctx context.Context) {
	c.mu.Lock()
	prev := c.current
	c.current = ""
	c.mu.Unlock()

	if prev == "" {
		return
	}

	logs.CtxInfo(ctx, "[browser] closing prior session %s before next launch", prev)
	if err := c.ctrl.Close(prev); err != nil {
		logs.CtxWarn(ctx, "[browser] close prior session %s: %v", prev, err)
	}

	deadline := time.Now().Add(c.vacateTimeout)
	for time.Now().Before(deadline) {
		if c.ctrl.Status(prev) == StateAbsent {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(vacatePollPeriod):
		}
	}
	c.clearState(prev)

	if c.settleDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(c.settleDelay):
		}
	}
}

func (c *Coordinator) setState(id string, st SessionState) {
	c.mu.Lock()
	c.states[id] = st
	c.mu.Unlock()
}

func (c *Coordinator) clearState(id string) {
	c.mu.Lock()
	delete(c.states, id)
	c.mu.Unlock()
}
