package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/pill-monitor/internal/device"
	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/notify"
	"github.com/and161185/pill-monitor/internal/repository"
	"github.com/and161185/pill-monitor/internal/repository/memory"
)

var _ SettingsHolder = (*notify.Notifier)(nil)
var _ AddressSetter = (*device.Client)(nil)

type fakeAddr struct{ addr string }

func (f *fakeAddr) Address() string { return f.addr }
func (f *fakeAddr) SetAddress(a string) error {
	if a == "" {
		return errs.ErrValidation
	}
	f.addr = a
	return nil
}

func TestProfile_UpdateKeepsAppointments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewProfileService(memory.NewKVRepo(), nil, nil, zaptest.NewLogger(t))

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	require.Empty(t, p.Appointments)
	require.NotNil(t, p.Appointments)

	a, err := s.AddAppointment(ctx, model.Appointment{DoctorName: "Dr. Lee", Date: "2026-05-01", Time: "09:30"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)

	_, err = s.UpdateProfile(ctx, model.UserProfile{Name: "Ann", Age: 71, Email: "ann@example.com"})
	require.NoError(t, err)

	p, err = s.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ann", p.Name)
	require.Equal(t, []model.Appointment{a}, p.Appointments)

	_, err = s.UpdateProfile(ctx, model.UserProfile{Age: -1})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.UpdateProfile(ctx, model.UserProfile{Email: "nope"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestProfile_AppointmentCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewProfileService(memory.NewKVRepo(), nil, nil, nil)

	for _, bad := range []model.Appointment{
		{Date: "2026-05-01"},
		{DoctorName: "X", Date: "05/01/2026"},
		{DoctorName: "X", Date: "2026-05-01", Time: "25:00"},
	} {
		_, err := s.AddAppointment(ctx, bad)
		require.ErrorIs(t, err, errs.ErrValidation)
	}

	a, err := s.AddAppointment(ctx, model.Appointment{DoctorName: "Dr. Lee", Date: "2026-05-01"})
	require.NoError(t, err)

	u, err := s.UpdateAppointment(ctx, a.ID, model.Appointment{DoctorName: "Dr. Kim", Date: "2026-05-02", Notes: "fasting"})
	require.NoError(t, err)
	require.Equal(t, a.ID, u.ID)

	_, err = s.UpdateAppointment(ctx, "missing", model.Appointment{DoctorName: "X", Date: "2026-05-02"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.DeleteAppointment(ctx, a.ID))
	require.ErrorIs(t, s.DeleteAppointment(ctx, a.ID), errs.ErrNotFound)

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	require.Empty(t, p.Appointments)
}

func TestProfile_SettingsAndAddressRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.NewKVRepo()
	n := notify.NewNotifier(nil, nil)
	addr := &fakeAddr{addr: "http://192.168.1.100"}
	s := NewProfileService(repo, n, addr, zaptest.NewLogger(t))

	off := model.NotificationSettings{Enabled: false, Sound: true}
	require.NoError(t, s.UpdateNotificationSettings(ctx, off))
	require.Equal(t, off, n.Settings())
	require.NoError(t, s.SetDeviceAddress(ctx, " 10.0.0.2 "))
	require.ErrorIs(t, s.SetDeviceAddress(ctx, ""), errs.ErrValidation)

	n2 := notify.NewNotifier(nil, nil)
	addr2 := &fakeAddr{}
	restored := NewProfileService(repo, n2, addr2, zaptest.NewLogger(t))
	require.NoError(t, restored.Restore(ctx))
	require.Equal(t, off, restored.NotificationSettings())
	require.Equal(t, "10.0.0.2", restored.DeviceAddress())
}

func TestProfile_RestoreIgnoresCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.NewKVRepo()
	require.NoError(t, repo.Save(ctx, repository.KeyNotificationSettings, []byte("{")))
	n := notify.NewNotifier(nil, nil)
	s := NewProfileService(repo, n, nil, zaptest.NewLogger(t))
	require.NoError(t, s.Restore(ctx))
	require.Equal(t, model.DefaultNotificationSettings(), n.Settings())
}

type brokenRepo struct{ memory.KVRepo }

func (b *brokenRepo) Load(context.Context, string) ([]byte, error) { return nil, errors.New("io") }

func TestProfile_RepoErrorPropagates(t *testing.T) {
	t.Parallel()
	s := NewProfileService(&brokenRepo{}, notify.NewNotifier(nil, nil), nil, nil)
	_, err := s.Profile(context.Background())
	require.Error(t, err)
	require.Error(t, s.Restore(context.Background()))
}
