// Package inventory owns the per-dose medicine collections, their alarms and the ledger.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/ledger"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/notify"
	"github.com/and161185/pill-monitor/internal/repository"
)

// Notifier receives events raised by mutations. It is called without the store lock held.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) bool
}

// Store is the only component allowed to mutate the inventory. All operations are
// serialized by one mutex that covers both the inventory and the ledger.
type Store struct {
	log      *zap.Logger
	repo     repository.KVRepository
	notifier Notifier
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	inv    model.Inventory
	ledger *ledger.Ledger
	rev    uint64

	saveMu   sync.Mutex
	savedRev uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for ledger entries.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDs overrides the id generator for medicines and ledger entries.
func WithIDs(newID func() string) Option { return func(s *Store) { s.newID = newID } }

// New constructs a store with the default inventory and an empty ledger.
// repo and notifier may be nil.
func New(repo repository.KVRepository, notifier Notifier, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		log:      log,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.Must(uuid.NewV4()).String() },
		inv:      model.DefaultInventory(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ledger = s.newLedger(nil)
	return s
}

func (s *Store) newLedger(entries []model.HistoryEntry) *ledger.Ledger {
	return ledger.New(entries, ledger.WithClock(s.now), ledger.WithIDs(s.newID))
}

// Load restores inventory and ledger from persistence. Absent keys keep the defaults.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	inv := model.DefaultInventory()
	raw, err := s.repo.Load(ctx, repository.KeyPillData)
	switch {
	case errors.Is(err, errs.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load %s: %w", repository.KeyPillData, err)
	default:
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("decode %s: %w", repository.KeyPillData, err)
		}
		if err := inv.Validate(); err != nil {
			return fmt.Errorf("decode %s: %w", repository.KeyPillData, err)
		}
	}

	var entries []model.HistoryEntry
	raw, err = s.repo.Load(ctx, repository.KeyPillHistory)
	switch {
	case errors.Is(err, errs.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load %s: %w", repository.KeyPillHistory, err)
	default:
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", repository.KeyPillHistory, err)
		}
	}

	s.mu.Lock()
	s.inv = inv
	s.ledger = s.newLedger(entries)
	s.rev++
	s.savedRev = s.rev
	s.mu.Unlock()

	s.log.Info("inventory loaded", zap.Int("history", len(entries)))
	return nil
}

// Snapshot returns a deep copy of the current inventory.
func (s *Store) Snapshot() model.Inventory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.Clone()
}

// Revision increases on every successful mutation. The reconciler uses it to detect
// local changes made while a fetch was outstanding.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// History returns an independent copy of the ledger.
func (s *Store) History() *ledger.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clone()
}

// Stats returns dashboard totals.
func (s *Store) Stats() model.QuickStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.Stats()
}

// DoseTotal returns the sum of counts for dose, the figure pushed to the device.
func (s *Store) DoseTotal(d model.DoseKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot := s.inv.Slot(d); slot != nil {
		return slot.Total()
	}
	return 0
}

// change is what a mutation leaves to do once the lock is released.
type change struct {
	notes   []notify.Notification
	docs    map[string][]byte
	rev     uint64
	changed bool
}

// commitLocked bumps the revision and encodes the documents to persist. Callers hold s.mu.
func (s *Store) commitLocked(c *change, withHistory bool) {
	s.rev++
	c.rev = s.rev
	c.changed = true
	if s.repo == nil {
		return
	}
	c.docs = make(map[string][]byte, 2)
	if b, err := json.Marshal(s.inv); err == nil {
		c.docs[repository.KeyPillData] = b
	} else {
		s.log.Error("encode inventory", zap.Error(err))
	}
	if withHistory {
		if b, err := json.Marshal(s.ledger.Entries()); err == nil {
			c.docs[repository.KeyPillHistory] = b
		} else {
			s.log.Error("encode history", zap.Error(err))
		}
	}
}

// finish persists and notifies outside the store lock. Saves are ordered by revision;
// a save older than one already written is skipped.
func (s *Store) finish(ctx context.Context, c change) {
	if c.changed && len(c.docs) > 0 {
		s.saveMu.Lock()
		if c.rev > s.savedRev {
			if err := s.repo.SaveAll(ctx, c.docs); err != nil {
				s.log.Error("persist inventory", zap.Uint64("rev", c.rev), zap.Error(err))
			} else {
				s.savedRev = c.rev
			}
		}
		s.saveMu.Unlock()
	}
	if s.notifier == nil {
		return
	}
	for _, n := range c.notes {
		s.notifier.Notify(ctx, n)
	}
}

func (s *Store) appendLocked(e model.HistoryEntry) {
	if _, err := s.ledger.Append(e); err != nil {
		s.log.Error("ledger append", zap.String("action", string(e.Action)), zap.Error(err))
	}
}

func slotOrErr(inv *model.Inventory, d model.DoseKey) (*model.DoseSlot, error) {
	slot := inv.Slot(d)
	if slot == nil {
		return nil, fmt.Errorf("%w: dose %d", errs.ErrValidation, int(d))
	}
	return slot, nil
}

// AddMedicine appends a medicine with the default count to dose and records it.
func (s *Store) AddMedicine(ctx context.Context, d model.DoseKey, name string) (model.Medicine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Medicine{}, fmt.Errorf("%w: empty medicine name", errs.ErrValidation)
	}

	var c change
	s.mu.Lock()
	slot, err := slotOrErr(&s.inv, d)
	if err != nil {
		s.mu.Unlock()
		return model.Medicine{}, err
	}
	m := model.Medicine{ID: s.newID(), Name: name, Count: model.DefaultMedicineCount}
	slot.Medicines = append(slot.Medicines, m)
	s.appendLocked(model.HistoryEntry{MedicineName: name, Dose: d, Action: model.ActionAdded, Count: m.Count})
	s.commitLocked(&c, true)
	s.mu.Unlock()

	s.finish(ctx, c)
	s.log.Debug("medicine added", zap.Stringer("dose", d), zap.String("id", m.ID))
	return m, nil
}

// RemoveMedicine deletes the medicine with id from dose. It reports whether anything
// was removed; removing an absent id is a no-op.
func (s *Store) RemoveMedicine(ctx context.Context, d model.DoseKey, id string) bool {
	var c change
	s.mu.Lock()
	slot := s.inv.Slot(d)
	i := -1
	if slot != nil {
		i = slot.Find(id)
	}
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	m := slot.Medicines[i]
	slot.Medicines = append(slot.Medicines[:i:i], slot.Medicines[i+1:]...)
	s.appendLocked(model.HistoryEntry{MedicineName: m.Name, Dose: d, Action: model.ActionRemoved, Count: m.Count})
	s.commitLocked(&c, true)
	s.mu.Unlock()

	s.finish(ctx, c)
	return true
}

// AdjustCount changes a count by delta (+1 or -1), clamping at zero. ok is false when the
// medicine does not exist. A decrement of an empty medicine changes nothing and is not recorded.
// Crossing from stocked to low stock raises a low-stock notification.
func (s *Store) AdjustCount(ctx context.Context, d model.DoseKey, id string, delta int) (model.CountChange, bool, error) {
	if delta != 1 && delta != -1 {
		return model.CountChange{}, false, fmt.Errorf("%w: delta %d", errs.ErrValidation, delta)
	}

	var c change
	s.mu.Lock()
	slot := s.inv.Slot(d)
	i := -1
	if slot != nil {
		i = slot.Find(id)
	}
	if i < 0 {
		s.mu.Unlock()
		return model.CountChange{}, false, nil
	}
	m := &slot.Medicines[i]
	cc := model.CountChange{Old: m.Count, New: max(m.Count+delta, 0)}
	if cc.New == cc.Old {
		s.mu.Unlock()
		return cc, true, nil
	}
	m.Count = cc.New
	oldC, newC := cc.Old, cc.New
	s.appendLocked(model.HistoryEntry{
		MedicineName: m.Name,
		Dose:         d,
		Action:       model.ActionCountAdjusted,
		Count:        abs(cc.New - cc.Old),
		OldCount:     &oldC,
		NewCount:     &newC,
	})
	if cc.CrossedLowStock() {
		c.notes = append(c.notes, notify.LowStock(d, m.Name, cc.New))
	}
	s.commitLocked(&c, true)
	s.mu.Unlock()

	s.finish(ctx, c)
	return cc, true, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ConsumeDose takes one pill of every medicine in dose. Every medicine gets a taken entry,
// including those already at zero, and every medicine left below the threshold raises a
// low-stock notification. It returns the names of the medicines in the dose.
func (s *Store) ConsumeDose(ctx context.Context, d model.DoseKey) ([]string, error) {
	var c change
	s.mu.Lock()
	slot, err := slotOrErr(&s.inv, d)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	names := make([]string, 0, len(slot.Medicines))
	for i := range slot.Medicines {
		m := &slot.Medicines[i]
		oldC := m.Count
		m.Count = max(m.Count-1, 0)
		newC := m.Count
		names = append(names, m.Name)
		s.appendLocked(model.HistoryEntry{
			MedicineName: m.Name,
			Dose:         d,
			Action:       model.ActionTaken,
			Count:        1,
			OldCount:     &oldC,
			NewCount:     &newC,
		})
		if newC < model.LowStockThreshold {
			c.notes = append(c.notes, notify.LowStock(d, m.Name, newC))
		}
	}
	if len(names) > 0 {
		s.commitLocked(&c, true)
	}
	s.mu.Unlock()

	s.finish(ctx, c)
	return names, nil
}

// SetAlarm sets the alarm of dose to minutes since midnight. Out-of-range values are rejected.
// The change raises a confirmation notification but no ledger entry.
func (s *Store) SetAlarm(ctx context.Context, d model.DoseKey, minutes int) error {
	if minutes < 0 || minutes > model.MaxAlarmMinutes {
		return fmt.Errorf("%w: alarm %d out of range", errs.ErrValidation, minutes)
	}

	var c change
	s.mu.Lock()
	slot, err := slotOrErr(&s.inv, d)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	slot.Alarm = minutes
	c.notes = append(c.notes, notify.AlarmSet(d, minutes))
	s.commitLocked(&c, false)
	s.mu.Unlock()

	s.finish(ctx, c)
	return nil
}

// ReplaceSnapshot mirrors a remote snapshot wholesale. basisRev is the revision observed
// before the snapshot was fetched; if the store changed since, the snapshot is stale and
// discarded. No ledger entries and no low-stock checks are produced.
func (s *Store) ReplaceSnapshot(ctx context.Context, inv model.Inventory, basisRev uint64) bool {
	if err := inv.Validate(); err != nil {
		s.log.Warn("snapshot rejected", zap.Error(err))
		return false
	}

	var c change
	s.mu.Lock()
	if s.rev != basisRev {
		cur := s.rev
		s.mu.Unlock()
		s.log.Debug("stale snapshot discarded", zap.Uint64("basis", basisRev), zap.Uint64("rev", cur))
		return false
	}
	s.inv = inv.Clone()
	s.commitLocked(&c, false)
	s.mu.Unlock()

	s.finish(ctx, c)
	return true
}
