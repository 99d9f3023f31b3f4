package model

import "time"

// Action is the kind of event recorded in the ledger.
type Action string

const (
	ActionAdded         Action = "added"
	ActionRemoved       Action = "removed"
	ActionTaken         Action = "taken"
	ActionCountAdjusted Action = "count-adjusted"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAdded, ActionRemoved, ActionTaken, ActionCountAdjusted:
		return true
	}
	return false
}

// HistoryEntry is one immutable ledger record.
// Count is the quantity the event concerns: initial count for added, count at removal for
// removed, pills taken for taken and the absolute change for count-adjusted.
type HistoryEntry struct {
	ID           string    `json:"id"`
	MedicineName string    `json:"medicineName"`
	Dose         DoseKey   `json:"dose"`
	Action       Action    `json:"action"`
	Count        int       `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
	OldCount     *int      `json:"oldCount,omitempty"`
	NewCount     *int      `json:"newCount,omitempty"`
}

// CountChange is the result of a count adjustment.
type CountChange struct {
	Old int `json:"oldCount"`
	New int `json:"newCount"`
}

// CrossedLowStock reports the edge transition from stocked to low stock.
func (c CountChange) CrossedLowStock() bool {
	return c.Old >= LowStockThreshold && c.New < LowStockThreshold
}

// ConnectivityState is derived from reconciler outcomes only.
type ConnectivityState struct {
	Connected  bool       `json:"connected"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}
