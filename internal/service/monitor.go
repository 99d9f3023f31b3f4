package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/archive"
	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/ledger"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/notify"
	"github.com/and161185/pill-monitor/internal/reconcile"
)

// InventoryStore is the inventory store as seen by the API.
type InventoryStore interface {
	Snapshot() model.Inventory
	History() *ledger.Ledger
	Stats() model.QuickStats
	DoseTotal(d model.DoseKey) int
	AddMedicine(ctx context.Context, d model.DoseKey, name string) (model.Medicine, error)
	RemoveMedicine(ctx context.Context, d model.DoseKey, id string) bool
	AdjustCount(ctx context.Context, d model.DoseKey, id string, delta int) (model.CountChange, bool, error)
	ConsumeDose(ctx context.Context, d model.DoseKey) ([]string, error)
	SetAlarm(ctx context.Context, d model.DoseKey, minutes int) error
}

// Device is the reconciler as seen by the API.
type Device interface {
	TrySync(ctx context.Context) error
	Status() reconcile.Status
	PushAlarm(ctx context.Context, d model.DoseKey, minutes int) bool
	PushCount(ctx context.Context, d model.DoseKey, count int) bool
}

// Archiver exports the ledger.
type Archiver interface {
	Export(ctx context.Context, entries []model.HistoryEntry) (archive.Result, error)
}

// Reminders raises and snoozes user notifications.
type Reminders interface {
	Notify(ctx context.Context, n notify.Notification) bool
	Snooze(d model.DoseKey, after time.Duration)
}

// Dashboard is the quick-stats view.
type Dashboard struct {
	model.QuickStats
	Connectivity model.ConnectivityState `json:"connectivity"`
}

// MonitorService applies user commands to the store and mirrors them to the device.
// Device pushes are best effort: the local change stands when a push fails.
type MonitorService struct {
	store    InventoryStore
	device   Device
	reminder Reminders
	archiver Archiver
	log      *zap.Logger
}

// NewMonitorService wires the service. reminder and archiver may be nil.
func NewMonitorService(store InventoryStore, device Device, reminder Reminders, archiver Archiver, log *zap.Logger) *MonitorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MonitorService{store: store, device: device, reminder: reminder, archiver: archiver, log: log}
}

func (s *MonitorService) pushCount(ctx context.Context, d model.DoseKey) {
	if s.device != nil {
		s.device.PushCount(ctx, d, s.store.DoseTotal(d))
	}
}

// Inventory returns the current inventory.
func (s *MonitorService) Inventory() model.Inventory { return s.store.Snapshot() }

// AddMedicine adds a medicine and pushes the new dose total.
func (s *MonitorService) AddMedicine(ctx context.Context, d model.DoseKey, name string) (model.Medicine, error) {
	m, err := s.store.AddMedicine(ctx, d, name)
	if err != nil {
		return model.Medicine{}, err
	}
	s.pushCount(ctx, d)
	return m, nil
}

// RemoveMedicine removes a medicine; absent ids are a no-op reported as false.
func (s *MonitorService) RemoveMedicine(ctx context.Context, d model.DoseKey, id string) bool {
	if !s.store.RemoveMedicine(ctx, d, id) {
		return false
	}
	s.pushCount(ctx, d)
	return true
}

// AdjustCount changes a medicine count by one.
func (s *MonitorService) AdjustCount(ctx context.Context, d model.DoseKey, id string, delta int) (model.CountChange, bool, error) {
	cc, ok, err := s.store.AdjustCount(ctx, d, id, delta)
	if err != nil || !ok {
		return cc, ok, err
	}
	if cc.New != cc.Old {
		s.pushCount(ctx, d)
	}
	return cc, true, nil
}

// TakeDose records a dose as taken from the app and confirms it.
func (s *MonitorService) TakeDose(ctx context.Context, d model.DoseKey) ([]string, error) {
	names, err := s.store.ConsumeDose(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		s.pushCount(ctx, d)
	}
	if s.reminder != nil {
		s.reminder.Notify(ctx, notify.DoseTaken(d, names))
	}
	return names, nil
}

// SetAlarm sets the alarm locally and forwards it to the device.
func (s *MonitorService) SetAlarm(ctx context.Context, d model.DoseKey, minutes int) error {
	if err := s.store.SetAlarm(ctx, d, minutes); err != nil {
		return err
	}
	if s.device != nil {
		s.device.PushAlarm(ctx, d, minutes)
	}
	return nil
}

// Sync runs an on-demand sync.
func (s *MonitorService) Sync(ctx context.Context) error {
	if s.device == nil {
		return fmt.Errorf("%w: no device configured", errs.ErrTransportUnreachable)
	}
	return s.device.TrySync(ctx)
}

// Status returns the reconciler status.
func (s *MonitorService) Status() reconcile.Status {
	if s.device == nil {
		return reconcile.Status{}
	}
	return s.device.Status()
}

// History returns a copy of the ledger.
func (s *MonitorService) History() *ledger.Ledger { return s.store.History() }

// Stats returns the dashboard totals with connectivity.
func (s *MonitorService) Stats() Dashboard {
	return Dashboard{QuickStats: s.store.Stats(), Connectivity: s.Status().State}
}

// Snooze re-raises the reminder for d later.
func (s *MonitorService) Snooze(d model.DoseKey, after time.Duration) error {
	if !d.Valid() {
		return fmt.Errorf("%w: dose %d", errs.ErrValidation, int(d))
	}
	if s.reminder != nil {
		s.reminder.Snooze(d, after)
	}
	return nil
}

// Export writes the ledger to the archive.
func (s *MonitorService) Export(ctx context.Context) (archive.Result, error) {
	if s.archiver == nil {
		return archive.Result{}, fmt.Errorf("%w: archive not configured", errs.ErrNotFound)
	}
	res, err := s.archiver.Export(ctx, s.store.History().Entries())
	if err != nil {
		return archive.Result{}, err
	}
	s.log.Info("history exported", zap.String("key", res.Key), zap.Int("entries", res.Entries))
	return res, nil
}
