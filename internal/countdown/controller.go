// Package countdown implements the deferred, undoable delete: a visible
// countdown that commits the destructive call only once the undo window
// has elapsed, shared across every agent instance of one profile.
package countdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/domain"
	"classdesk/internal/monitoring"
	"classdesk/internal/refresh"
	"classdesk/internal/store"
)

// State is the controller's position in the delete lifecycle.
type State int

const (
	StateIdle State = iota
	StatePending
	StateExecuting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrInvalidTarget is returned when start is called without a target
	// or scope. The call has no side effect.
	ErrInvalidTarget = errors.New("target id and scope are required")
	// ErrBusy is returned when a countdown is already pending or
	// executing.
	ErrBusy = errors.New("a delete countdown is already running")
	// ErrNoPending is returned by undo when there is nothing to cancel.
	ErrNoPending = errors.New("no pending delete")
)

// Deleter performs the destructive call and classifies its result.
type Deleter interface {
	Delete(ctx context.Context, targetID string, scope domain.Scope) domain.DeleteOutcome
}

// Status is a point-in-time view for presentation.
type Status struct {
	State       State
	Record      domain.PendingDelete
	SecondsLeft int
	Err         string
}

// Options tune the controller. Zero values pick the defaults.
type Options struct {
	TickInterval  time.Duration // default 250ms
	DefaultWindow time.Duration // default 5s
	Now           func() time.Time
}

// Controller is the per-process singleton owning the countdown state
// machine: Idle -> Pending -> Executing -> Idle | Failed, with
// Failed -> Idle via undo, dismiss or a successful retry. All mutation
// goes through it; the store only mirrors its transitions.
type Controller struct {
	store   store.Store
	del     Deleter
	signals *refresh.Broadcaster
	metrics *monitoring.Metrics
	logger  *zap.Logger

	now           func() time.Time
	tickInterval  time.Duration
	defaultWindow time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	rec      domain.PendingDelete
	errText  string
	inFlight bool
	tickStop chan struct{}
}

func New(st store.Store, del Deleter, signals *refresh.Broadcaster, m *monitoring.Metrics, logger *zap.Logger, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 250 * time.Millisecond
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:         st,
		del:           del,
		signals:       signals,
		metrics:       m,
		logger:        logger,
		now:           opts.Now,
		tickInterval:  opts.TickInterval,
		defaultWindow: opts.DefaultWindow,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start opens a new undo window for targetID. Valid from Idle and from
// Failed (restarting a failed deletion clears its error). A zero window
// uses the default.
func (c *Controller) Start(ctx context.Context, targetID string, scope domain.Scope, message string, window time.Duration) error {
	if targetID == "" {
		return ErrInvalidTarget
	}
	if _, err := domain.ParseScope(string(scope)); err != nil {
		return ErrInvalidTarget
	}
	if window <= 0 {
		window = c.defaultWindow
	}

	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFailed {
		c.mu.Unlock()
		return ErrBusy
	}
	rec := domain.PendingDelete{
		Active:        true,
		TargetID:      targetID,
		Scope:         scope,
		Message:       message,
		EndsAtEpochMs: c.now().Add(window).UnixMilli(),
	}
	if err := c.store.Save(ctx, rec); err != nil {
		c.mu.Unlock()
		return err
	}
	c.rec = rec
	c.errText = ""
	c.state = StatePending
	c.startTickerLocked()
	c.mu.Unlock()

	c.metrics.IncStarted()
	c.metrics.SetPending(true)
	c.logger.Info("delete countdown started",
		zap.String("target_id", targetID),
		zap.String("scope", string(scope)),
		zap.Duration("window", window))
	return nil
}

// Undo cancels the countdown (or discards a failed one) without calling
// the server. The local state is reset even if clearing the shared
// store fails.
func (c *Controller) Undo(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePending && c.state != StateFailed {
		c.mu.Unlock()
		return ErrNoPending
	}
	targetID := c.rec.TargetID
	c.stopTickerLocked()
	c.resetLocked()
	c.mu.Unlock()

	c.metrics.IncUndone()
	c.metrics.SetPending(false)
	c.logger.Info("delete countdown cancelled", zap.String("target_id", targetID))
	return c.store.Clear(ctx)
}

// Dismiss discards a failed deletion without retrying. It is the same
// operation as Undo, named for the failed-state affordance.
func (c *Controller) Dismiss(ctx context.Context) error {
	return c.Undo(ctx)
}

// Status returns the current state for presentation. SecondsLeft is
// derived, never stored, and frozen at zero outside Pending.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Record: c.rec, Err: c.errText}
	if c.state == StatePending {
		st.SecondsLeft = c.rec.SecondsLeft(c.now())
	}
	return st
}

// Restore picks up a countdown persisted by an earlier process. A
// corrupt record is discarded and the controller stays idle; a record
// whose deadline already passed is executed immediately.
func (c *Controller) Restore(ctx context.Context) error {
	rec, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			c.logger.Warn("discarding corrupt pending-delete record", zap.Error(err))
			return c.store.Clear(ctx)
		}
		return err
	}
	if rec == nil {
		return nil
	}

	c.mu.Lock()
	c.rec = *rec
	c.errText = ""
	if rec.Expired(c.now()) {
		c.state = StateExecuting
		c.inFlight = true
		due := c.rec
		c.mu.Unlock()
		c.metrics.SetPending(true)
		c.logger.Info("restored countdown already due, executing",
			zap.String("target_id", due.TargetID))
		go c.execute(due)
		return nil
	}
	c.state = StatePending
	c.startTickerLocked()
	c.mu.Unlock()

	c.metrics.SetPending(true)
	c.logger.Info("resumed countdown from store",
		zap.String("target_id", rec.TargetID),
		zap.Int("seconds_left", rec.SecondsLeft(c.now())))
	return nil
}

// Run consumes change notifications from the shared store until ctx is
// cancelled, mirroring countdowns started, cancelled or frozen by
// sibling instances.
func (c *Controller) Run(ctx context.Context) error {
	events, err := c.store.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.apply(ev)
		}
	}
}

// Close stops the ticker and aborts any outstanding execution context.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTickerLocked()
	c.mu.Unlock()
	c.cancel()
}

// apply folds one store notification into local state. Adopting a record
// never executes directly; execution stays gated by this instance's own
// ticker, so at most one instance performs the delete and a late second
// attempt resolves through the already-gone path.
func (c *Controller) apply(ev store.Event) {
	c.mu.Lock()
	if c.inFlight {
		// Our own outcome will settle the state shortly.
		c.mu.Unlock()
		return
	}
	if ev.Record == nil || !ev.Record.Valid() {
		if c.state == StateIdle {
			c.mu.Unlock()
			return
		}
		c.stopTickerLocked()
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.SetPending(false)
		c.logger.Info("countdown cleared by another instance")
		return
	}
	rec := *ev.Record
	if c.state != StateIdle && sameRecord(c.rec, rec) {
		// Echo of our own write, or a record we already mirror.
		c.mu.Unlock()
		return
	}
	c.rec = rec
	c.errText = ""
	c.state = StatePending
	c.startTickerLocked()
	c.mu.Unlock()

	c.metrics.SetPending(true)
	c.logger.Info("adopted countdown from another instance",
		zap.String("target_id", rec.TargetID))
}

// tick fires on the ticker cadence while Pending. When the window
// closes it claims the execution slot exactly once; the in-flight flag
// keeps overlapping ticks from re-entering.
func (c *Controller) tick() {
	c.mu.Lock()
	if c.state != StatePending || c.inFlight || c.errText != "" {
		c.mu.Unlock()
		return
	}
	if c.rec.SecondsLeft(c.now()) > 0 {
		c.mu.Unlock()
		return
	}
	c.state = StateExecuting
	c.inFlight = true
	c.stopTickerLocked()
	due := c.rec
	c.mu.Unlock()

	c.execute(due)
}

func (c *Controller) execute(rec domain.PendingDelete) {
	out := c.del.Delete(c.ctx, rec.TargetID, rec.Scope)
	c.metrics.IncDelete(out.Code.String())

	if out.Code == domain.OutcomeFailed {
		c.mu.Lock()
		c.inFlight = false
		c.state = StateFailed
		c.errText = out.Message
		frozen := c.rec
		c.mu.Unlock()

		// Terminal outcome still overwrites the shared record so sibling
		// instances keep showing the frozen deletion.
		if err := c.store.Save(c.ctx, frozen); err != nil {
			c.logger.Warn("failed to persist frozen record", zap.Error(err))
		}
		c.logger.Warn("delete failed, awaiting user action",
			zap.String("target_id", rec.TargetID),
			zap.String("reason", out.Message))
		return
	}

	if err := c.store.Clear(c.ctx); err != nil {
		c.logger.Warn("failed to clear record after delete", zap.Error(err))
	}
	c.mu.Lock()
	c.inFlight = false
	c.resetLocked()
	c.mu.Unlock()

	c.metrics.SetPending(false)
	c.signals.Broadcast()
	c.logger.Info("delete committed",
		zap.String("target_id", rec.TargetID),
		zap.String("outcome", out.Code.String()))
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.rec = domain.PendingDelete{}
	c.errText = ""
}

func (c *Controller) startTickerLocked() {
	if c.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickStop = stop
	go func() {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

func (c *Controller) stopTickerLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func sameRecord(a, b domain.PendingDelete) bool {
	return a.TargetID == b.TargetID && a.Scope == b.Scope && a.EndsAtEpochMs == b.EndsAtEpochMs
}
