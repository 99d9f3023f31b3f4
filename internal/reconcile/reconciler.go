// Package reconcile keeps the local inventory in step with the remote dispenser.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/alert"
	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/model"
)

const (
	// DefaultInterval is the poll period.
	DefaultInterval = 30 * time.Second
	// DefaultTimeout bounds every single device call.
	DefaultTimeout = 5 * time.Second
)

// Transport is the device capability set.
type Transport interface {
	FetchSnapshot(ctx context.Context) (model.Inventory, error)
	PushAlarm(ctx context.Context, d model.DoseKey, hour, minute int) error
	PushCount(ctx context.Context, d model.DoseKey, count int) error
	FetchAlertText(ctx context.Context) (string, error)
}

// Store is the part of the inventory store a sync writes to.
type Store interface {
	Revision() uint64
	ReplaceSnapshot(ctx context.Context, inv model.Inventory, basisRev uint64) bool
}

// AlertHandler consumes device alert texts.
type AlertHandler interface {
	Handle(ctx context.Context, text string) alert.Event
}

// Phase is the reconciler state. Synced and Failed are terminal for one sync; the next
// sync starts from either.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseSynced
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSyncing:
		return "syncing"
	case PhaseSynced:
		return "synced"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Status is a point-in-time view of the reconciler.
type Status struct {
	Phase     Phase                   `json:"phase"`
	State     model.ConnectivityState `json:"connectivity"`
	LastError string                  `json:"lastError,omitempty"`
}

// Reconciler fetches device snapshots into the store and forwards local changes to the
// device. A sync requested while another is outstanding is dropped, never queued.
type Reconciler struct {
	transport Transport
	store     Store
	alerts    AlertHandler
	log       *zap.Logger
	timeout   time.Duration
	now       func() time.Time
	onChange  func(connected bool)

	inFlight atomic.Bool

	mu      sync.RWMutex
	state   model.ConnectivityState
	phase   Phase
	lastErr error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTimeout sets the per-call device timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source for lastSyncAt.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithConnectivityHook registers fn to be called whenever the connected flag flips.
func WithConnectivityHook(fn func(connected bool)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// New constructs a Reconciler. alerts may be nil.
func New(t Transport, s Store, alerts AlertHandler, log *zap.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reconciler{
		transport: t,
		store:     s,
		alerts:    alerts,
		log:       log,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Connectivity returns the connectivity derived from the last sync.
func (r *Reconciler) Connectivity() model.ConnectivityState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.state
	if st.LastSyncAt != nil {
		t := *st.LastSyncAt
		st.LastSyncAt = &t
	}
	return st
}

// Status returns phase, connectivity and the last sync error.
func (r *Reconciler) Status() Status {
	st := Status{State: r.Connectivity()}
	r.mu.RLock()
	st.Phase = r.phase
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.RUnlock()
	return st
}

// Sync fetches a snapshot and mirrors it into the store. It never returns an error;
// failures flip connectivity to false and return false.
func (r *Reconciler) Sync(ctx context.Context) bool {
	return r.TrySync(ctx) == nil
}

// TrySync is Sync with the reason for a false result: errs.ErrSyncInProgress when the
// request was dropped, errs.ErrTransportUnreachable or errs.ErrMalformedSnapshot otherwise.
func (r *Reconciler) TrySync(ctx context.Context) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug("sync dropped, another is in flight")
		return errs.ErrSyncInProgress
	}
	defer r.inFlight.Store(false)

	r.setPhase(PhaseSyncing)
	basis := r.store.Revision()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	inv, err := r.transport.FetchSnapshot(cctx)
	cancel()
	if err == nil {
		err = inv.Validate()
	}
	if err != nil {
		if !errors.Is(err, errs.ErrMalformedSnapshot) && !errors.Is(err, errs.ErrTransportUnreachable) {
			err = fmt.Errorf("%w: %w", errs.ErrTransportUnreachable, err)
		}
		r.finish(false, err)
		r.log.Warn("sync failed", zap.Error(err))
		return err
	}

	if !r.store.ReplaceSnapshot(ctx, inv, basis) {
		r.log.Info("snapshot not applied, local state changed during fetch")
	}
	r.finish(true, nil)
	return nil
}

func (r *Reconciler) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

func (r *Reconciler) finish(ok bool, err error) {
	r.mu.Lock()
	was := r.state.Connected
	r.state.Connected = ok
	if ok {
		t := r.now()
		r.state.LastSyncAt = &t
		r.phase = PhaseSynced
	} else {
		r.phase = PhaseFailed
	}
	r.lastErr = err
	r.mu.Unlock()

	if was != ok {
		r.log.Info("device connectivity changed", zap.Bool("connected", ok))
		if r.onChange != nil {
			r.onChange(ok)
		}
	}
}

// PushAlarm sends an alarm time to the device. Failures are logged and reported as false;
// the local change stands and the next sync updates connectivity.
func (r *Reconciler) PushAlarm(ctx context.Context, d model.DoseKey, minutes int) bool {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.transport.PushAlarm(cctx, d, minutes/60, minutes%60); err != nil {
		r.log.Warn("push alarm failed", zap.Stringer("dose", d), zap.Bool("connected", r.Connectivity().Connected), zap.Error(err))
		return false
	}
	return true
}

// PushCount sends a dose pill count to the device, best effort like PushAlarm.
func (r *Reconciler) PushCount(ctx context.Context, d model.DoseKey, count int) bool {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.transport.PushCount(cctx, d, count); err != nil {
		r.log.Warn("push count failed", zap.Stringer("dose", d), zap.Bool("connected", r.Connectivity().Connected), zap.Error(err))
		return false
	}
	return true
}

// PollAlerts fetches the device alert text and hands it to the alert handler. It does
// nothing while the device is disconnected.
func (r *Reconciler) PollAlerts(ctx context.Context) {
	if r.alerts == nil || !r.Connectivity().Connected {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	text, err := r.transport.FetchAlertText(cctx)
	cancel()
	if err != nil {
		r.log.Debug("fetch alert failed", zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	r.alerts.Handle(ctx, text)
}

// Tick is one poll: sync, then check alerts if the device answered.
func (r *Reconciler) Tick(ctx context.Context) {
	if r.Sync(ctx) {
		r.PollAlerts(ctx)
	}
}

// Run ticks once immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.Tick(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.setPhase(PhaseIdle)
			return
		case <-t.C:
			r.Tick(ctx)
		}
	}
}
