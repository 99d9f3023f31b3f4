package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/model"
)

// DefaultSnooze is how long a snoozed reminder waits before it is shown again.
const DefaultSnooze = 10 * time.Minute

// Sink displays a notification to the user (OS notification, UI feed, log).
type Sink interface {
	Show(ctx context.Context, n Notification) error
}

// Notifier applies the policy with the current settings and forwards what survives to a sink.
type Notifier struct {
	sink Sink
	log  *zap.Logger
	now  func() time.Time

	mu       sync.RWMutex
	settings model.NotificationSettings

	timersMu sync.Mutex
	timers   map[model.DoseKey]*time.Timer
}

// NewNotifier constructs a Notifier with default settings (everything enabled).
func NewNotifier(sink Sink, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		sink:     sink,
		log:      log,
		now:      time.Now,
		settings: model.DefaultNotificationSettings(),
		timers:   make(map[model.DoseKey]*time.Timer),
	}
}

// Settings returns the active notification settings.
func (n *Notifier) Settings() model.NotificationSettings {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.settings
}

// SetSettings replaces the active notification settings.
func (n *Notifier) SetSettings(s model.NotificationSettings) {
	n.mu.Lock()
	n.settings = s
	n.mu.Unlock()
}

// Notify runs the policy for msg and shows it when allowed. It reports whether the sink
// accepted the notification.
func (n *Notifier) Notify(ctx context.Context, msg Notification) bool {
	d := Decide(n.Settings(), msg.Kind)
	if !d.Show {
		n.log.Debug("notification suppressed", zap.String("kind", string(msg.Kind)))
		return false
	}
	msg.Urgency = d.Urgency
	msg.Sound = d.Sound
	msg.Vibrate = d.Vibrate
	if msg.At.IsZero() {
		msg.At = n.now()
	}
	if n.sink == nil {
		return false
	}
	if err := n.sink.Show(ctx, msg); err != nil {
		n.log.Warn("notification sink failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		return false
	}
	return true
}

// Snooze re-shows a reminder for dose after the given delay. A second snooze for the
// same dose replaces the pending one.
func (n *Notifier) Snooze(dose model.DoseKey, after time.Duration) {
	if after <= 0 {
		after = DefaultSnooze
	}
	msg := ReminderDue(dose, "Don't forget to take your medicine!")

	n.timersMu.Lock()
	defer n.timersMu.Unlock()
	if t, ok := n.timers[dose]; ok {
		t.Stop()
	}
	n.timers[dose] = time.AfterFunc(after, func() {
		n.timersMu.Lock()
		delete(n.timers, dose)
		n.timersMu.Unlock()
		n.Notify(context.Background(), msg)
	})
}

// Pending reports how many snoozed reminders are waiting.
func (n *Notifier) Pending() int {
	n.timersMu.Lock()
	defer n.timersMu.Unlock()
	return len(n.timers)
}

// Close cancels pending snoozed reminders.
func (n *Notifier) Close() {
	n.timersMu.Lock()
	defer n.timersMu.Unlock()
	for d, t := range n.timers {
		t.Stop()
		delete(n.timers, d)
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct{ Log *zap.Logger }

// Show implements Sink.
func (s LogSink) Show(_ context.Context, n Notification) error {
	s.Log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("urgency", string(n.Urgency)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// MultiSink fans a notification out to every sink and returns the first error.
type MultiSink []Sink

// Show implements Sink.
func (m MultiSink) Show(ctx context.Context, n Notification) error {
	var first error
	for _, s := range m {
		if err := s.Show(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
