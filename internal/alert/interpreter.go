// Package alert turns free-text device alerts into structured events and acts on them.
package alert

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/notify"
)

// Kind is the classification of an alert text.
type Kind int

const (
	KindNone Kind = iota
	KindReminderDue
	KindDoseTaken
	KindDoseMissed
)

func (k Kind) String() string {
	switch k {
	case KindReminderDue:
		return "reminder-due"
	case KindDoseTaken:
		return "dose-taken"
	case KindDoseMissed:
		return "dose-missed"
	default:
		return "none"
	}
}

// Event is a classified alert. Dose is zero when the text names no dose.
type Event struct {
	Kind Kind
	Dose model.DoseKey
	Text string
}

var (
	takeMedicineRe = regexp.MustCompile(`(?i)\btake\b.*\bmedicine\b`)
	doseRe         = regexp.MustCompile(`(?i)\b(morning|lunch|dinner)\b`)
)

func doseKeyword(text string) model.DoseKey {
	m := doseRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	switch strings.ToLower(m[1]) {
	case "morning":
		return model.DoseMorning
	case "lunch":
		return model.DoseMidday
	default:
		return model.DoseEvening
	}
}

// Classify applies the device vocabulary rules in order; the first match wins.
// A "taken" alert without a dose keyword is ambiguous and yields KindNone.
func Classify(text string) Event {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	switch {
	case text == "":
		return Event{}
	case takeMedicineRe.MatchString(text):
		return Event{Kind: KindReminderDue, Dose: doseKeyword(text), Text: text}
	case strings.Contains(lower, "taken"):
		d := doseKeyword(text)
		if d == 0 {
			return Event{Text: text}
		}
		return Event{Kind: KindDoseTaken, Dose: d, Text: text}
	case strings.Contains(lower, "missed"):
		return Event{Kind: KindDoseMissed, Dose: doseKeyword(text), Text: text}
	default:
		return Event{Text: text}
	}
}

// Store is the inventory mutation the interpreter drives.
type Store interface {
	ConsumeDose(ctx context.Context, d model.DoseKey) ([]string, error)
}

// Notifier shows user-visible notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) bool
}

// DefaultDedupeWindow suppresses a repeated alert text seen again within it.
const DefaultDedupeWindow = 10 * time.Minute

const seenCacheSize = 128

// Interpreter classifies device alerts and applies their side effects.
type Interpreter struct {
	store    Store
	notifier Notifier
	log      *zap.Logger
	window   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	seen *lru.Cache[string, time.Time]
}

// NewInterpreter builds an interpreter. A window of zero disables de-duplication.
func NewInterpreter(store Store, notifier Notifier, log *zap.Logger, window time.Duration) (*Interpreter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	seen, err := lru.New[string, time.Time](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		store:    store,
		notifier: notifier,
		log:      log,
		window:   window,
		now:      time.Now,
		seen:     seen,
	}, nil
}

// duplicate reports whether text was handled within the window and records it otherwise.
func (i *Interpreter) duplicate(text string) bool {
	if i.window <= 0 {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	if at, ok := i.seen.Get(text); ok && now.Sub(at) < i.window {
		return true
	}
	i.seen.Add(text, now)
	return false
}

// Handle classifies text and applies it: reminders and missed doses notify, a taken dose
// is consumed from the inventory and then confirmed. It returns the event that was applied;
// ignored, ambiguous and repeated texts return KindNone.
func (i *Interpreter) Handle(ctx context.Context, text string) Event {
	ev := Classify(text)
	if ev.Kind == KindNone {
		if ev.Text != "" {
			i.log.Debug("alert ignored", zap.String("text", ev.Text))
		}
		return Event{}
	}
	if i.duplicate(ev.Text) {
		i.log.Debug("duplicate alert", zap.String("text", ev.Text))
		return Event{}
	}

	i.log.Info("device alert", zap.Stringer("kind", ev.Kind), zap.Int("dose", int(ev.Dose)))
	switch ev.Kind {
	case KindReminderDue:
		i.notify(ctx, notify.ReminderDue(ev.Dose, ev.Text))
	case KindDoseMissed:
		i.notify(ctx, notify.DoseMissed(ev.Dose, ev.Text))
	case KindDoseTaken:
		names, err := i.store.ConsumeDose(ctx, ev.Dose)
		if err != nil {
			i.log.Error("consume dose", zap.Stringer("dose", ev.Dose), zap.Error(err))
			return Event{}
		}
		i.notify(ctx, notify.DoseTaken(ev.Dose, names))
	}
	return ev
}

func (i *Interpreter) notify(ctx context.Context, n notify.Notification) {
	if i.notifier != nil {
		i.notifier.Notify(ctx, n)
	}
}
