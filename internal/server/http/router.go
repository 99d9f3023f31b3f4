package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/limiter"
	"github.com/and161185/pill-monitor/internal/service"
)

// Options carries the dependencies of the router.
type Options struct {
	Monitor *service.MonitorService
	Profile *service.ProfileService
	Tokens  TokenVerifier
	Limiter limiter.Limiter
	Hub     *Hub
	Log     *zap.Logger
}

// NewRouter builds the API. Everything except /health requires a bearer token.
func NewRouter(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{monitor: opts.Monitor, profile: opts.Profile, log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Recover(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(Logging(log))
		r.Use(Auth(opts.Tokens, opts.Limiter))

		r.Get("/inventory", h.getInventory)
		r.Route("/doses/{dose}", func(r chi.Router) {
			r.Post("/medicines", h.addMedicine)
			r.Delete("/medicines/{id}", h.removeMedicine)
			r.Post("/medicines/{id}/adjust", h.adjustCount)
			r.Post("/take", h.takeDose)
			r.Put("/alarm", h.setAlarm)
			r.Post("/snooze", h.snooze)
		})

		r.Post("/sync", h.sync)
		r.Get("/status", h.status)
		r.Get("/stats", h.stats)

		r.Get("/history", h.history)
		r.Get("/history/summary", h.historySummary)
		r.Post("/history/export", h.exportHistory)

		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.updateProfile)
		r.Post("/profile/appointments", h.addAppointment)
		r.Put("/profile/appointments/{id}", h.updateAppointment)
		r.Delete("/profile/appointments/{id}", h.deleteAppointment)

		r.Get("/settings/notifications", h.getNotificationSettings)
		r.Put("/settings/notifications", h.putNotificationSettings)
		r.Get("/settings/device", h.getDevice)
		r.Put("/settings/device", h.putDevice)

		if opts.Hub != nil {
			r.Get("/ws", opts.Hub.ServeWS)
		}
	})
	return r
}
