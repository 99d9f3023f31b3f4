package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/repository"
)

// SettingsHolder applies notification settings at runtime.
type SettingsHolder interface {
	Settings() model.NotificationSettings
	SetSettings(s model.NotificationSettings)
}

// AddressSetter switches the device address at runtime.
type AddressSetter interface {
	Address() string
	SetAddress(addr string) error
}

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ProfileService manages the user profile, appointments and app settings.
type ProfileService struct {
	repo     repository.KVRepository
	settings SettingsHolder
	device   AddressSetter
	log      *zap.Logger

	mu sync.Mutex
}

// NewProfileService wires the service. settings and device may be nil.
func NewProfileService(repo repository.KVRepository, settings SettingsHolder, device AddressSetter, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{repo: repo, settings: settings, device: device, log: log}
}

func (s *ProfileService) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.repo.Load(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *ProfileService) saveJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.repo.Save(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Restore applies persisted notification settings and device address. Corrupt values are
// logged and the defaults kept.
func (s *ProfileService) Restore(ctx context.Context) error {
	if s.settings != nil {
		var ns model.NotificationSettings
		ok, err := s.loadJSON(ctx, repository.KeyNotificationSettings, &ns)
		switch {
		case err != nil && !isDecode(err):
			return err
		case err != nil:
			s.log.Warn("ignoring stored notification settings", zap.Error(err))
		case ok:
			s.settings.SetSettings(ns)
		}
	}
	if s.device != nil {
		var addr string
		ok, err := s.loadJSON(ctx, repository.KeyDeviceAddress, &addr)
		switch {
		case err != nil && !isDecode(err):
			return err
		case err != nil:
			s.log.Warn("ignoring stored device address", zap.Error(err))
		case ok:
			if err := s.device.SetAddress(addr); err != nil {
				s.log.Warn("ignoring stored device address", zap.String("addr", addr), zap.Error(err))
			}
		}
	}
	return nil
}

func isDecode(err error) bool {
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &te)
}

// Profile returns the stored profile, or an empty one.
func (s *ProfileService) Profile(ctx context.Context) (model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(ctx)
}

func (s *ProfileService) profileLocked(ctx context.Context) (model.UserProfile, error) {
	p := model.UserProfile{Appointments: []model.Appointment{}}
	if _, err := s.loadJSON(ctx, repository.KeyUserProfile, &p); err != nil {
		return model.UserProfile{}, err
	}
	if p.Appointments == nil {
		p.Appointments = []model.Appointment{}
	}
	return p, nil
}

// UpdateProfile replaces the patient fields; appointments are left as they are.
func (s *ProfileService) UpdateProfile(ctx context.Context, in model.UserProfile) (model.UserProfile, error) {
	if in.Age < 0 || in.Age > 150 {
		return model.UserProfile{}, fmt.Errorf("%w: age %d", errs.ErrValidation, in.Age)
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return model.UserProfile{}, fmt.Errorf("%w: email %q", errs.ErrValidation, in.Email)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.profileLocked(ctx)
	if err != nil {
		return model.UserProfile{}, err
	}
	in.Appointments = cur.Appointments
	if err := s.saveJSON(ctx, repository.KeyUserProfile, in); err != nil {
		return model.UserProfile{}, err
	}
	return in, nil
}

func validateAppointment(a model.Appointment) error {
	if strings.TrimSpace(a.DoctorName) == "" {
		return fmt.Errorf("%w: empty doctor name", errs.ErrValidation)
	}
	if !dateRe.MatchString(a.Date) {
		return fmt.Errorf("%w: date %q, want YYYY-MM-DD", errs.ErrValidation, a.Date)
	}
	if a.Time != "" && !timeRe.MatchString(a.Time) {
		return fmt.Errorf("%w: time %q, want HH:MM", errs.ErrValidation, a.Time)
	}
	return nil
}

// AddAppointment stores a new appointment with a fresh id.
func (s *ProfileService) AddAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if err := validateAppointment(a); err != nil {
		return model.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.profileLocked(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	a.ID = uuid.Must(uuid.NewV4()).String()
	p.Appointments = append(p.Appointments, a)
	if err := s.saveJSON(ctx, repository.KeyUserProfile, p); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// UpdateAppointment replaces the appointment with id.
func (s *ProfileService) UpdateAppointment(ctx context.Context, id string, a model.Appointment) (model.Appointment, error) {
	if err := validateAppointment(a); err != nil {
		return model.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.profileLocked(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	for i := range p.Appointments {
		if p.Appointments[i].ID == id {
			a.ID = id
			p.Appointments[i] = a
			if err := s.saveJSON(ctx, repository.KeyUserProfile, p); err != nil {
				return model.Appointment{}, err
			}
			return a, nil
		}
	}
	return model.Appointment{}, errs.ErrNotFound
}

// DeleteAppointment removes the appointment with id.
func (s *ProfileService) DeleteAppointment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.profileLocked(ctx)
	if err != nil {
		return err
	}
	for i := range p.Appointments {
		if p.Appointments[i].ID == id {
			p.Appointments = append(p.Appointments[:i], p.Appointments[i+1:]...)
			return s.saveJSON(ctx, repository.KeyUserProfile, p)
		}
	}
	return errs.ErrNotFound
}

// NotificationSettings returns the active settings.
func (s *ProfileService) NotificationSettings() model.NotificationSettings {
	if s.settings == nil {
		return model.DefaultNotificationSettings()
	}
	return s.settings.Settings()
}

// UpdateNotificationSettings persists and applies ns.
func (s *ProfileService) UpdateNotificationSettings(ctx context.Context, ns model.NotificationSettings) error {
	if err := s.saveJSON(ctx, repository.KeyNotificationSettings, ns); err != nil {
		return err
	}
	if s.settings != nil {
		s.settings.SetSettings(ns)
	}
	return nil
}

// DeviceAddress returns the current dispenser base URL.
func (s *ProfileService) DeviceAddress() string {
	if s.device == nil {
		return ""
	}
	return s.device.Address()
}

// SetDeviceAddress validates, applies and persists a new dispenser address.
func (s *ProfileService) SetDeviceAddress(ctx context.Context, addr string) error {
	if s.device == nil {
		return fmt.Errorf("%w: no device configured", errs.ErrNotFound)
	}
	if err := s.device.SetAddress(addr); err != nil {
		return err
	}
	return s.saveJSON(ctx, repository.KeyDeviceAddress, strings.TrimSpace(addr))
}
