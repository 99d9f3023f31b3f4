package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pill-monitor/internal/archive"
	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/inventory"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/notify"
	"github.com/and161185/pill-monitor/internal/reconcile"
)

var _ InventoryStore = (*inventory.Store)(nil)
var _ Device = (*reconcile.Reconciler)(nil)
var _ Reminders = (*notify.Notifier)(nil)
var _ Archiver = (*archive.S3Exporter)(nil)

type fakeDevice struct {
	syncErr error
	status  reconcile.Status

	alarms map[model.DoseKey]int
	counts map[model.DoseKey]int
}

var _ Device = (*fakeDevice)(nil)

func (f *fakeDevice) TrySync(context.Context) error { return f.syncErr }
func (f *fakeDevice) Status() reconcile.Status      { return f.status }
func (f *fakeDevice) PushAlarm(_ context.Context, d model.DoseKey, m int) bool {
	if f.alarms == nil {
		f.alarms = map[model.DoseKey]int{}
	}
	f.alarms[d] = m
	return true
}
func (f *fakeDevice) PushCount(_ context.Context, d model.DoseKey, c int) bool {
	if f.counts == nil {
		f.counts = map[model.DoseKey]int{}
	}
	f.counts[d] = c
	return true
}

type fakeReminders struct {
	shown   []notify.Notification
	snoozed []model.DoseKey
}

func (f *fakeReminders) Notify(_ context.Context, n notify.Notification) bool {
	f.shown = append(f.shown, n)
	return true
}
func (f *fakeReminders) Snooze(d model.DoseKey, _ time.Duration) { f.snoozed = append(f.snoozed, d) }

type fakeArchiver struct {
	got []model.HistoryEntry
	err error
}

func (f *fakeArchiver) Export(_ context.Context, e []model.HistoryEntry) (archive.Result, error) {
	f.got = e
	return archive.Result{Key: "k", Entries: len(e)}, f.err
}

func newMonitor(t *testing.T) (*MonitorService, *fakeDevice, *fakeReminders, *fakeArchiver) {
	t.Helper()
	dev, rem, arch := &fakeDevice{}, &fakeReminders{}, &fakeArchiver{}
	store := inventory.New(nil, rem, zaptest.NewLogger(t))
	return NewMonitorService(store, dev, rem, arch, zaptest.NewLogger(t)), dev, rem, arch
}

func TestMonitor_MutationsPushDoseTotals(t *testing.T) {
	t.Parallel()
	s, dev, _, _ := newMonitor(t)
	ctx := context.Background()

	a, err := s.AddMedicine(ctx, model.DoseMorning, "A")
	require.NoError(t, err)
	require.Equal(t, 6, dev.counts[model.DoseMorning])

	_, err = s.AddMedicine(ctx, model.DoseMorning, "B")
	require.NoError(t, err)
	require.Equal(t, 12, dev.counts[model.DoseMorning])

	cc, ok, err := s.AdjustCount(ctx, model.DoseMorning, a.ID, -1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, cc.New)
	require.Equal(t, 11, dev.counts[model.DoseMorning])

	require.True(t, s.RemoveMedicine(ctx, model.DoseMorning, a.ID))
	require.Equal(t, 6, dev.counts[model.DoseMorning])
	require.False(t, s.RemoveMedicine(ctx, model.DoseMorning, a.ID))

	_, ok, err = s.AdjustCount(ctx, model.DoseMorning, "missing", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMonitor_TakeDoseNotifies(t *testing.T) {
	t.Parallel()
	s, dev, rem, _ := newMonitor(t)
	ctx := context.Background()
	_, err := s.AddMedicine(ctx, model.DoseEvening, "B12")
	require.NoError(t, err)

	names, err := s.TakeDose(ctx, model.DoseEvening)
	require.NoError(t, err)
	require.Equal(t, []string{"B12"}, names)
	require.Equal(t, 5, dev.counts[model.DoseEvening])
	require.Equal(t, notify.KindDoseTaken, rem.shown[len(rem.shown)-1].Kind)
}

func TestMonitor_SetAlarm(t *testing.T) {
	t.Parallel()
	s, dev, _, _ := newMonitor(t)
	ctx := context.Background()

	require.NoError(t, s.SetAlarm(ctx, model.DoseMidday, 12*60+30))
	require.Equal(t, 750, dev.alarms[model.DoseMidday])
	require.Equal(t, 750, s.Inventory().Midday.Alarm)

	require.ErrorIs(t, s.SetAlarm(ctx, model.DoseMidday, 1440), errs.ErrValidation)
	require.Equal(t, 750, dev.alarms[model.DoseMidday])
}

func TestMonitor_SyncStatsSnooze(t *testing.T) {
	t.Parallel()
	s, dev, rem, _ := newMonitor(t)

	dev.syncErr = errs.ErrSyncInProgress
	require.ErrorIs(t, s.Sync(context.Background()), errs.ErrSyncInProgress)

	dev.status = reconcile.Status{State: model.ConnectivityState{Connected: true}}
	st := s.Stats()
	require.True(t, st.Connectivity.Connected)
	require.Zero(t, st.TotalPills)

	require.NoError(t, s.Snooze(model.DoseMorning, time.Minute))
	require.Equal(t, []model.DoseKey{model.DoseMorning}, rem.snoozed)
	require.ErrorIs(t, s.Snooze(model.DoseKey(7), time.Minute), errs.ErrValidation)
}

func TestMonitor_Export(t *testing.T) {
	t.Parallel()
	s, _, _, arch := newMonitor(t)
	ctx := context.Background()
	_, err := s.AddMedicine(ctx, model.DoseMorning, "A")
	require.NoError(t, err)

	res, err := s.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Entries)
	require.Len(t, arch.got, 1)

	arch.err = errors.New("s3 down")
	_, err = s.Export(ctx)
	require.Error(t, err)

	none := NewMonitorService(inventory.New(nil, nil, nil), nil, nil, nil, nil)
	_, err = none.Export(ctx)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, none.Sync(ctx), errs.ErrTransportUnreachable)
}
