package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pill-monitor/internal/model"
)

type recSink struct {
	mu   sync.Mutex
	got  []Notification
	err  error
	fire chan struct{}
}

var _ Sink = (*recSink)(nil)

func (r *recSink) Show(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	if r.fire != nil {
		r.fire <- struct{}{}
	}
	return r.err
}

func (r *recSink) shown() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func TestNotifier_AppliesPolicy(t *testing.T) {
	t.Parallel()
	sink := &recSink{}
	n := NewNotifier(sink, zaptest.NewLogger(t))
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return at }

	require.True(t, n.Notify(context.Background(), LowStock(model.DoseMorning, "A", 2)))
	got := sink.shown()
	require.Len(t, got, 1)
	require.Equal(t, UrgencyDestructive, got[0].Urgency)
	require.True(t, got[0].Sound)
	require.True(t, got[0].Vibrate)
	require.Equal(t, at, got[0].At)
}

func TestNotifier_DisabledSuppresses(t *testing.T) {
	t.Parallel()
	sink := &recSink{}
	n := NewNotifier(sink, nil)
	n.SetSettings(model.NotificationSettings{Enabled: false, Sound: true})

	require.False(t, n.Notify(context.Background(), DoseMissed(model.DoseEvening, "missed")))
	require.Empty(t, sink.shown())
	require.False(t, n.Settings().Enabled)
}

func TestNotifier_SinkErrorReported(t *testing.T) {
	t.Parallel()
	sink := &recSink{err: errors.New("boom")}
	n := NewNotifier(sink, zaptest.NewLogger(t))
	require.False(t, n.Notify(context.Background(), ReminderDue(model.DoseMorning, "take")))
}

func TestNotifier_SnoozeReplacesAndFires(t *testing.T) {
	t.Parallel()
	sink := &recSink{fire: make(chan struct{}, 4)}
	n := NewNotifier(sink, zaptest.NewLogger(t))
	defer n.Close()

	n.Snooze(model.DoseMorning, time.Hour)
	require.Equal(t, 1, n.Pending())
	n.Snooze(model.DoseMorning, 10*time.Millisecond)

	select {
	case <-sink.fire:
	case <-time.After(2 * time.Second):
		t.Fatal("snoozed reminder did not fire")
	}
	got := sink.shown()
	require.Len(t, got, 1)
	require.Equal(t, KindReminderDue, got[0].Kind)
	require.Equal(t, model.DoseMorning, got[0].Dose)
}

func TestNotifier_CloseCancelsSnooze(t *testing.T) {
	t.Parallel()
	sink := &recSink{}
	n := NewNotifier(sink, nil)
	n.Snooze(model.DoseEvening, time.Hour)
	n.Close()
	require.Zero(t, n.Pending())
}

func TestMultiSink_FirstError(t *testing.T) {
	t.Parallel()
	a, b := &recSink{err: errors.New("a")}, &recSink{}
	err := MultiSink{a, b}.Show(context.Background(), Notification{Title: "x"})
	require.EqualError(t, err, "a")
	require.Len(t, b.shown(), 1)
}
