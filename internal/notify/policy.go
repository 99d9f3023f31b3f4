// Package notify decides which events reach the user and delivers them to a sink.
package notify

import "github.com/and161185/pill-monitor/internal/model"

// Kind is the event a notification is raised for.
type Kind string

const (
	KindLowStock    Kind = "low-stock"
	KindReminderDue Kind = "reminder-due"
	KindDoseTaken   Kind = "dose-taken"
	KindDoseMissed  Kind = "dose-missed"
	KindAlarmSet    Kind = "alarm-set"
)

// Urgency is how prominently a notification is rendered.
type Urgency string

const (
	UrgencyStandard    Urgency = "standard"
	UrgencyDestructive Urgency = "destructive"
)

// Decision is the outcome of the policy for one event.
type Decision struct {
	Show    bool
	Urgency Urgency
	Sound   bool
	Vibrate bool
}

// Decide is the notification policy. Disabled notifications suppress everything;
// state changes that raised the event are not affected.
func Decide(s model.NotificationSettings, k Kind) Decision {
	if !s.Enabled {
		return Decision{}
	}
	d := Decision{Show: true, Urgency: UrgencyStandard, Sound: s.Sound, Vibrate: s.Vibration}
	switch k {
	case KindLowStock, KindDoseMissed:
		d.Urgency = UrgencyDestructive
	case KindReminderDue, KindDoseTaken, KindAlarmSet:
	default:
		return Decision{}
	}
	return d
}
