// Package model defines domain entities shared by the store, the reconciler and the API.
package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/and161185/pill-monitor/internal/errs"
)

const (
	// DefaultMedicineCount is the count a freshly added medicine starts with.
	DefaultMedicineCount = 6
	// LowStockThreshold: counts strictly below it are low stock.
	LowStockThreshold = 3
	// MaxAlarmMinutes is the last valid minute of the day (23:59).
	MaxAlarmMinutes = 24*60 - 1
)

// Medicine is a single medicine tracked inside one dose.
type Medicine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DoseSlot holds the medicines of one dose and its alarm time in minutes since midnight.
type DoseSlot struct {
	Medicines []Medicine
	Alarm     int
}

// Find returns the index of the medicine with id, or -1.
func (s *DoseSlot) Find(id string) int {
	for i := range s.Medicines {
		if s.Medicines[i].ID == id {
			return i
		}
	}
	return -1
}

// Total sums the counts of every medicine in the slot.
func (s *DoseSlot) Total() int {
	n := 0
	for _, m := range s.Medicines {
		n += m.Count
	}
	return n
}

// Inventory is the full per-dose state mirrored between the app and the device.
type Inventory struct {
	Morning DoseSlot
	Midday  DoseSlot
	Evening DoseSlot
}

// DefaultInventory is the state used before anything was loaded or synced.
func DefaultInventory() Inventory {
	return Inventory{
		Morning: DoseSlot{Medicines: []Medicine{}, Alarm: 8 * 60},
		Midday:  DoseSlot{Medicines: []Medicine{}, Alarm: 13 * 60},
		Evening: DoseSlot{Medicines: []Medicine{}, Alarm: 20 * 60},
	}
}

// Slot returns the slot for d, or nil when d is not a valid dose.
func (inv *Inventory) Slot(d DoseKey) *DoseSlot {
	switch d {
	case DoseMorning:
		return &inv.Morning
	case DoseMidday:
		return &inv.Midday
	case DoseEvening:
		return &inv.Evening
	default:
		return nil
	}
}

// Clone returns a deep copy.
func (inv Inventory) Clone() Inventory {
	out := inv
	for _, d := range Doses {
		src := inv.Slot(d)
		dst := out.Slot(d)
		dst.Medicines = append(make([]Medicine, 0, len(src.Medicines)), src.Medicines...)
	}
	return out
}

// Validate checks the invariants a snapshot must satisfy before it may replace local state.
func (inv *Inventory) Validate() error {
	for _, d := range Doses {
		s := inv.Slot(d)
		if s.Alarm < 0 || s.Alarm > MaxAlarmMinutes {
			return fmt.Errorf("%w: %s alarm %d out of range", errs.ErrMalformedSnapshot, d, s.Alarm)
		}
		for i, m := range s.Medicines {
			if strings.TrimSpace(m.ID) == "" {
				return fmt.Errorf("%w: %s medicine[%d] empty id", errs.ErrMalformedSnapshot, d, i)
			}
			if strings.TrimSpace(m.Name) == "" {
				return fmt.Errorf("%w: %s medicine[%d] empty name", errs.ErrMalformedSnapshot, d, i)
			}
			if m.Count < 0 {
				return fmt.Errorf("%w: %s medicine[%d] negative count", errs.ErrMalformedSnapshot, d, i)
			}
		}
	}
	return nil
}

// QuickStats summarises the inventory for a dashboard.
type QuickStats struct {
	TotalPills int `json:"totalPills"`
	Medicines  int `json:"medicines"`
	LowStock   int `json:"lowStock"`
}

// Stats computes totals over every dose. Low stock counts medicines below the threshold.
func (inv *Inventory) Stats() QuickStats {
	var st QuickStats
	for _, d := range Doses {
		for _, m := range inv.Slot(d).Medicines {
			st.TotalPills += m.Count
			st.Medicines++
			if m.Count < LowStockThreshold {
				st.LowStock++
			}
		}
	}
	return st
}

// wireInventory is the device payload shape; it is also used for local persistence.
type wireInventory struct {
	Medicines *wireMedicines `json:"medicines"`

	AlarmBreakfast *int `json:"alarmBreakfast"`
	AlarmLunch     *int `json:"alarmLunch"`
	AlarmDinner    *int `json:"alarmDinner"`
}

type wireMedicines struct {
	Breakfast []Medicine `json:"breakfast"`
	Lunch     []Medicine `json:"lunch"`
	Dinner    []Medicine `json:"dinner"`
}

func nonNil(ms []Medicine) []Medicine {
	if ms == nil {
		return []Medicine{}
	}
	return ms
}

// MarshalJSON encodes the inventory in the device wire shape.
func (inv Inventory) MarshalJSON() ([]byte, error) {
	a, b, c := inv.Morning.Alarm, inv.Midday.Alarm, inv.Evening.Alarm
	return json.Marshal(wireInventory{
		Medicines: &wireMedicines{
			Breakfast: nonNil(inv.Morning.Medicines),
			Lunch:     nonNil(inv.Midday.Medicines),
			Dinner:    nonNil(inv.Evening.Medicines),
		},
		AlarmBreakfast: &a,
		AlarmLunch:     &b,
		AlarmDinner:    &c,
	})
}

// UnmarshalJSON decodes the device wire shape. Missing sections are a malformed snapshot;
// range checks are left to Validate.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var w wireInventory
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMalformedSnapshot, err)
	}
	if w.Medicines == nil {
		return fmt.Errorf("%w: missing medicines", errs.ErrMalformedSnapshot)
	}
	if w.AlarmBreakfast == nil || w.AlarmLunch == nil || w.AlarmDinner == nil {
		return fmt.Errorf("%w: missing alarm", errs.ErrMalformedSnapshot)
	}
	*inv = Inventory{
		Morning: DoseSlot{Medicines: nonNil(w.Medicines.Breakfast), Alarm: *w.AlarmBreakfast},
		Midday:  DoseSlot{Medicines: nonNil(w.Medicines.Lunch), Alarm: *w.AlarmLunch},
		Evening: DoseSlot{Medicines: nonNil(w.Medicines.Dinner), Alarm: *w.AlarmDinner},
	}
	return nil
}
