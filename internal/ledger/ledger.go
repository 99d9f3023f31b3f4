// Package ledger implements the append-only medicine activity history and its derived views.
package ledger

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/model"
)

// Ledger is an append-only sequence of history entries. Entries are never edited,
// removed or reordered; append order is chronological order.
//
// Ledger is not safe for concurrent use; the inventory store serializes access.
type Ledger struct {
	entries []model.HistoryEntry
	now     func() time.Time
	newID   func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func newUUID() string { return uuid.Must(uuid.NewV4()).String() }

// New builds a ledger over a copy of existing entries (e.g. loaded from persistence).
func New(entries []model.HistoryEntry, opts ...Option) *Ledger {
	l := &Ledger{
		entries: append([]model.HistoryEntry(nil), entries...),
		now:     time.Now,
		newID:   newUUID,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append stamps e with an id and timestamp when missing and appends it.
// Timestamps never go backwards: an entry stamped before the previous one takes the
// previous entry's time.
func (l *Ledger) Append(e model.HistoryEntry) (model.HistoryEntry, error) {
	if strings.TrimSpace(e.MedicineName) == "" {
		return model.HistoryEntry{}, fmt.Errorf("%w: empty medicine name", errs.ErrValidation)
	}
	if !e.Dose.Valid() {
		return model.HistoryEntry{}, fmt.Errorf("%w: dose %d", errs.ErrValidation, int(e.Dose))
	}
	if !e.Action.Valid() {
		return model.HistoryEntry{}, fmt.Errorf("%w: action %q", errs.ErrValidation, e.Action)
	}
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if n := len(l.entries); n > 0 && e.Timestamp.Before(l.entries[n-1].Timestamp) {
		e.Timestamp = l.entries[n-1].Timestamp
	}
	l.entries = append(l.entries, e)
	return e, nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Entries returns a copy of all entries in append order.
func (l *Ledger) Entries() []model.HistoryEntry {
	return append([]model.HistoryEntry(nil), l.entries...)
}

// Clone returns an independent ledger with the same entries and clock.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{entries: l.Entries(), now: l.now, newID: l.newID}
}

// DayGroup holds the entries of one calendar day, newest first.
type DayGroup struct {
	Day     time.Time            `json:"day"`
	Entries []model.HistoryEntry `json:"entries"`
}

// GroupedByDate yields one group per calendar day in loc, newest day first and newest
// entry first within a day. The sequence is lazy and may be ranged over repeatedly.
func (l *Ledger) GroupedByDate(loc *time.Location) iter.Seq[DayGroup] {
	if loc == nil {
		loc = time.Local
	}
	entries := l.entries
	return func(yield func(DayGroup) bool) {
		var cur *DayGroup
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			y, m, d := e.Timestamp.In(loc).Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, loc)
			if cur != nil && !cur.Day.Equal(day) {
				if !yield(*cur) {
					return
				}
				cur = nil
			}
			if cur == nil {
				cur = &DayGroup{Day: day}
			}
			cur.Entries = append(cur.Entries, e)
		}
		if cur != nil {
			yield(*cur)
		}
	}
}

// Measure selects how PerMedicineTotals aggregates entries.
type Measure int

const (
	// SumCount adds up the Count field of matching entries.
	SumCount Measure = iota
	// CountEntries counts matching entries.
	CountEntries
)

// PerMedicineTotals aggregates entries with the given action by medicine name.
func (l *Ledger) PerMedicineTotals(action model.Action, measure Measure) map[string]int {
	out := make(map[string]int)
	for _, e := range l.entries {
		if e.Action != action {
			continue
		}
		switch measure {
		case CountEntries:
			out[e.MedicineName]++
		default:
			out[e.MedicineName] += e.Count
		}
	}
	return out
}

// MedicineSummary is the per-medicine statistics row shown next to the timeline.
type MedicineSummary struct {
	Taken   int `json:"taken"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Summary sums counts of taken, added and removed entries per medicine.
func (l *Ledger) Summary() map[string]MedicineSummary {
	out := make(map[string]MedicineSummary)
	for _, e := range l.entries {
		s := out[e.MedicineName]
		switch e.Action {
		case model.ActionTaken:
			s.Taken += e.Count
		case model.ActionAdded:
			s.Added += e.Count
		case model.ActionRemoved:
			s.Removed += e.Count
		default:
			continue
		}
		out[e.MedicineName] = s
	}
	return out
}
