package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/pill-monitor/internal/model"
)

// Notification is a user-visible message.
type Notification struct {
	Kind    Kind          `json:"kind"`
	Dose    model.DoseKey `json:"dose,omitempty"`
	Title   string        `json:"title"`
	Body    string        `json:"body"`
	Urgency Urgency       `json:"urgency"`
	Sound   bool          `json:"sound"`
	Vibrate bool          `json:"vibrate"`
	At      time.Time     `json:"at"`
}

func doseLabel(d model.DoseKey) string {
	s := d.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// LowStock warns that a medicine dropped below the refill threshold.
func LowStock(d model.DoseKey, medicine string, count int) Notification {
	return Notification{
		Kind:  KindLowStock,
		Dose:  d,
		Title: "Low Pill Count",
		Body:  fmt.Sprintf("%s: %s running low (%d left). Please refill.", doseLabel(d), medicine, count),
	}
}

// AlarmSet confirms an alarm change.
func AlarmSet(d model.DoseKey, minutes int) Notification {
	return Notification{
		Kind:  KindAlarmSet,
		Dose:  d,
		Title: "Alarm Updated",
		Body:  fmt.Sprintf("%s alarm set to %02d:%02d", doseLabel(d), minutes/60, minutes%60),
	}
}

// ReminderDue carries the device's reminder text. d may be zero when the text names no dose.
func ReminderDue(d model.DoseKey, text string) Notification {
	return Notification{Kind: KindReminderDue, Dose: d, Title: "Medicine Alert", Body: text}
}

// DoseMissed carries the device's missed-dose text.
func DoseMissed(d model.DoseKey, text string) Notification {
	return Notification{Kind: KindDoseMissed, Dose: d, Title: "Dose Missed", Body: text}
}

// DoseTaken confirms consumption of a dose.
func DoseTaken(d model.DoseKey, medicines []string) Notification {
	body := doseLabel(d) + " dose recorded"
	if len(medicines) > 0 {
		body += ": " + strings.Join(medicines, ", ")
	}
	return Notification{Kind: KindDoseTaken, Dose: d, Title: "Dose Taken", Body: body}
}
