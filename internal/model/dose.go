package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/pill-monitor/internal/errs"
)

// DoseKey identifies one of the three daily doses. The set is closed.
type DoseKey int

// The numeric values double as the device dose index (1=morning, 2=midday, 3=evening).
const (
	DoseMorning DoseKey = iota + 1
	DoseMidday
	DoseEvening
)

// Doses lists every dose in day order.
var Doses = [...]DoseKey{DoseMorning, DoseMidday, DoseEvening}

// Valid reports whether d is one of the three known doses.
func (d DoseKey) Valid() bool { return d >= DoseMorning && d <= DoseEvening }

// DeviceIndex is the dose number used on the device wire.
func (d DoseKey) DeviceIndex() int { return int(d) }

func (d DoseKey) String() string {
	switch d {
	case DoseMorning:
		return "morning"
	case DoseMidday:
		return "midday"
	case DoseEvening:
		return "evening"
	default:
		return "dose(" + strconv.Itoa(int(d)) + ")"
	}
}

// WireName is the field name the device uses for the dose (breakfast/lunch/dinner).
func (d DoseKey) WireName() string {
	switch d {
	case DoseMorning:
		return "breakfast"
	case DoseMidday:
		return "lunch"
	case DoseEvening:
		return "dinner"
	default:
		return ""
	}
}

// ParseDose accepts canonical names, device names and device indexes.
func ParseDose(s string) (DoseKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning", "breakfast", "1":
		return DoseMorning, nil
	case "midday", "lunch", "2":
		return DoseMidday, nil
	case "evening", "dinner", "3":
		return DoseEvening, nil
	}
	return 0, fmt.Errorf("%w: unknown dose %q", errs.ErrValidation, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DoseKey) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: dose %d", errs.ErrValidation, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DoseKey) UnmarshalText(b []byte) error {
	v, err := ParseDose(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
