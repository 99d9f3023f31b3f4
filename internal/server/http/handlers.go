package httpserver

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/ledger"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/service"
)

type handlers struct {
	monitor *service.MonitorService
	profile *service.ProfileService
	log     *zap.Logger
}

func doseParam(r *http.Request) (model.DoseKey, error) {
	return model.ParseDose(chi.URLParam(r, "dose"))
}

// inventoryView is the app-facing inventory shape keyed by canonical dose names.
type inventoryView map[string]slotView

type slotView struct {
	Medicines []model.Medicine `json:"medicines"`
	Alarm     int              `json:"alarm"`
	AlarmTime string           `json:"alarmTime"`
}

func viewOf(inv model.Inventory) inventoryView {
	out := make(inventoryView, len(model.Doses))
	for _, d := range model.Doses {
		s := inv.Slot(d)
		ms := s.Medicines
		if ms == nil {
			ms = []model.Medicine{}
		}
		out[d.String()] = slotView{Medicines: ms, Alarm: s.Alarm, AlarmTime: fmt.Sprintf("%02d:%02d", s.Alarm/60, s.Alarm%60)}
	}
	return out
}

func (h *handlers) getInventory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.monitor.Inventory()))
}

type addMedicineRequest struct {
	Name string `json:"name"`
}

func (h *handlers) addMedicine(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addMedicineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.monitor.AddMedicine(r.Context(), d, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handlers) removeMedicine(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.monitor.RemoveMedicine(r.Context(), d, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type adjustResponse struct {
	model.CountChange
	Applied bool `json:"applied"`
}

func (h *handlers) adjustCount(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cc, ok, err := h.monitor.AdjustCount(r.Context(), d, chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustResponse{CountChange: cc, Applied: ok})
}

type takeResponse struct {
	Medicines []string `json:"medicines"`
}

func (h *handlers) takeDose(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	names, err := h.monitor.TakeDose(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, takeResponse{Medicines: names})
}

var hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// alarmRequest accepts either minutes since midnight or an HH:MM time.
type alarmRequest struct {
	Minutes *int   `json:"minutes,omitempty"`
	Time    string `json:"time,omitempty"`
}

func (a alarmRequest) minutes() (int, error) {
	if a.Minutes != nil {
		return *a.Minutes, nil
	}
	m := hhmmRe.FindStringSubmatch(a.Time)
	if m == nil {
		return 0, fmt.Errorf("%w: alarm needs minutes or time HH:MM", errs.ErrValidation)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("%w: time %q", errs.ErrValidation, a.Time)
	}
	return hh*60 + mm, nil
}

func (h *handlers) setAlarm(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req alarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minutes, err := req.minutes()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.monitor.SetAlarm(r.Context(), d, minutes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (h *handlers) snooze(w http.ResponseWriter, r *http.Request) {
	d, err := doseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req snoozeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Minutes < 0 {
		writeError(w, fmt.Errorf("%w: negative snooze", errs.ErrValidation))
		return
	}
	if err := h.monitor.Snooze(d, time.Duration(req.Minutes)*time.Minute); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) sync(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Sync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Stats())
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, fmt.Errorf("%w: tz %q", errs.ErrValidation, tz))
			return
		}
		loc = l
	}
	groups := []ledger.DayGroup{}
	for g := range h.monitor.History().GroupedByDate(loc) {
		groups = append(groups, g)
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *handlers) historySummary(w http.ResponseWriter, r *http.Request) {
	l := h.monitor.History()
	q := r.URL.Query()
	action := model.Action(q.Get("action"))
	if action == "" {
		writeJSON(w, http.StatusOK, l.Summary())
		return
	}
	if !action.Valid() {
		writeError(w, fmt.Errorf("%w: action %q", errs.ErrValidation, action))
		return
	}
	measure := ledger.SumCount
	switch q.Get("measure") {
	case "", "sum":
	case "count":
		measure = ledger.CountEntries
	default:
		writeError(w, fmt.Errorf("%w: measure %q", errs.ErrValidation, q.Get("measure")))
		return
	}
	writeJSON(w, http.StatusOK, l.PerMedicineTotals(action, measure))
}

func (h *handlers) exportHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.monitor.Export(r.Context())
	if err != nil {
		h.log.Warn("export failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type profileView struct {
	model.UserProfile
	History []model.HistoryEntry `json:"history"`
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profile.Profile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	hist := h.monitor.History().Entries()
	if hist == nil {
		hist = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, profileView{UserProfile: p, History: hist})
}

func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in model.UserProfile
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profile.UpdateProfile(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) addAppointment(w http.ResponseWriter, r *http.Request) {
	var in model.Appointment
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.profile.AddAppointment(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var in model.Appointment
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.profile.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.profile.DeleteAppointment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getNotificationSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.profile.NotificationSettings())
}

func (h *handlers) putNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var in model.NotificationSettings
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.profile.UpdateNotificationSettings(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

type deviceView struct {
	Address string `json:"address"`
}

func (h *handlers) getDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deviceView{Address: h.profile.DeviceAddress()})
}

func (h *handlers) putDevice(w http.ResponseWriter, r *http.Request) {
	var in deviceView
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.profile.SetDeviceAddress(r.Context(), in.Address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceView{Address: h.profile.DeviceAddress()})
}
