package appointment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/repository/memory"
	"github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/pkg/clock"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/metrics"
)

// t0 is "now" when each test starts; appointments are booked at T = t0+24h.
var t0 = time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repos   *repository.Store
	clock   *clock.ManagedClock
	doctor  model.Actor
	patient model.Actor
	admin   model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.New().Repositories()
	clk := clock.NewManaged(t0)
	events := event.NewEventService(repos.Outbox, clk, logger.NewNop())

	f := &fixture{
		svc:     NewService(repos.Appointments, repos.Doctors, events, clk, logger.NewNop(), metrics.New("test")),
		repos:   repos,
		clock:   clk,
		patient: model.Actor{ID: uuid.New(), Role: model.RolePatient},
		admin:   model.Actor{ID: uuid.New(), Role: model.RoleAdmin},
	}
	f.doctor = f.addDoctor(t, model.VerificationVerified)
	return f
}

func (f *fixture) addDoctor(t *testing.T, status model.VerificationStatus) model.Actor {
	t.Helper()
	ctx := context.Background()
	account := &model.Account{
		Base:  model.Base{CreatedAt: t0, UpdatedAt: t0},
		Email: uuid.NewString() + "@example.com",
		Name:  "Dr. Test",
		Role:  model.RoleDoctor,
	}
	profile := &model.DoctorProfile{
		Specialty:          "general",
		VerificationStatus: model.VerificationPending,
		CreatedAt:          t0,
		UpdatedAt:          t0,
	}
	require.NoError(t, f.repos.Accounts.Create(ctx, account, profile))
	if status != model.VerificationPending {
		_, err := f.repos.Doctors.TransitionStatus(ctx, account.ID, model.VerificationPending, status, t0)
		require.NoError(t, err)
	}
	return model.Actor{ID: account.ID, Role: model.RoleDoctor}
}

func (f *fixture) book(t *testing.T) *model.Appointment {
	t.Helper()
	start := t0.Add(24 * time.Hour)
	apt, err := f.svc.Book(context.Background(), f.patient, f.doctor.ID, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	return apt
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code, "got %v", err)
}

func TestService_Book(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t)

	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, f.patient.ID, apt.PatientID)
	assert.Equal(t, f.doctor.ID, apt.DoctorID)
	assert.Nil(t, apt.VideoSessionID)

	stored, err := f.repos.Appointments.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt, stored)
}

func TestService_BookValidation(t *testing.T) {
	f := newFixture(t)
	pending := f.addDoctor(t, model.VerificationPending)
	rejected := f.addDoctor(t, model.VerificationRejected)
	start := t0.Add(24 * time.Hour)

	tests := []struct {
		name     string
		actor    model.Actor
		doctorID uuid.UUID
		start    time.Time
		end      time.Time
		want     apperrors.ErrorCode
	}{
		{name: "doctor cannot book", actor: f.doctor, doctorID: f.doctor.ID, start: start, end: start.Add(time.Hour), want: apperrors.ErrForbidden},
		{name: "admin cannot book", actor: f.admin, doctorID: f.doctor.ID, start: start, end: start.Add(time.Hour), want: apperrors.ErrForbidden},
		{name: "end equals start", actor: f.patient, doctorID: f.doctor.ID, start: start, end: start, want: apperrors.ErrInvalidInterval},
		{name: "end before start", actor: f.patient, doctorID: f.doctor.ID, start: start, end: start.Add(-time.Minute), want: apperrors.ErrInvalidInterval},
		{name: "zero times", actor: f.patient, doctorID: f.doctor.ID, want: apperrors.ErrInvalidInterval},
		{name: "in the past", actor: f.patient, doctorID: f.doctor.ID, start: t0.Add(-time.Hour), end: t0, want: apperrors.ErrBadRequest},
		{name: "already started", actor: f.patient, doctorID: f.doctor.ID, start: t0.Add(-time.Minute), end: t0.Add(time.Hour), want: apperrors.ErrBadRequest},
		{name: "malformed and in the past", actor: f.patient, doctorID: f.doctor.ID, start: t0.Add(-time.Hour), end: t0.Add(-2 * time.Hour), want: apperrors.ErrInvalidInterval},
		{name: "unknown doctor", actor: f.patient, doctorID: uuid.New(), start: start, end: start.Add(time.Hour), want: apperrors.ErrNotFound},
		{name: "pending doctor", actor: f.patient, doctorID: pending.ID, start: start, end: start.Add(time.Hour), want: apperrors.ErrUnverifiedDoctor},
		{name: "rejected doctor", actor: f.patient, doctorID: rejected.ID, start: start, end: start.Add(time.Hour), want: apperrors.ErrUnverifiedDoctor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tt.actor, tt.doctorID, tt.start, tt.end)
			assertCode(t, err, tt.want)
		})
	}

	list, err := f.repos.Appointments.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_BookAfterApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.addDoctor(t, model.VerificationPending)
	start := t0.Add(24 * time.Hour)

	_, err := f.svc.Book(ctx, f.patient, doctor.ID, start, start.Add(time.Hour))
	assertCode(t, err, apperrors.ErrUnverifiedDoctor)

	_, err = f.repos.Doctors.TransitionStatus(ctx, doctor.ID, model.VerificationPending, model.VerificationVerified, t0)
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.patient, doctor.ID, start, start.Add(time.Hour))
	assert.NoError(t, err)
}

func TestService_BookOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.book(t)
	other := model.Actor{ID: uuid.New(), Role: model.RolePatient}

	_, err := f.svc.Book(ctx, other, f.doctor.ID, apt.StartTime.Add(10*time.Minute), apt.EndTime.Add(10*time.Minute))
	assertCode(t, err, apperrors.ErrSlotConflict)

	// half-open: back-to-back slots do not conflict
	_, err = f.svc.Book(ctx, other, f.doctor.ID, apt.EndTime, apt.EndTime.Add(30*time.Minute))
	assert.NoError(t, err)

	_, err = f.svc.Cancel(ctx, apt.ID, f.patient)
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, other, f.doctor.ID, apt.StartTime, apt.EndTime)
	assert.NoError(t, err)
}

func TestService_ConcurrentBookingNoDoubleBooking(t *testing.T) {
	f := newFixture(t)
	start := t0.Add(24 * time.Hour)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			patient := model.Actor{ID: uuid.New(), Role: model.RolePatient}
			// overlapping but not identical windows
			s := start.Add(time.Duration(i) * time.Minute)
			_, err := f.svc.Book(context.Background(), patient, f.doctor.ID, s, s.Add(30*time.Minute))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict), "got %v", err)
		}(i)
	}
	wg.Wait()

	scheduled, err := f.repos.Appointments.List(context.Background(), &model.AppointmentFilters{
		DoctorID: f.doctor.ID,
		Status:   model.AppointmentStatusScheduled,
	})
	require.NoError(t, err)
	assert.Len(t, scheduled, succeeded)
	for i := range scheduled {
		for j := i + 1; j < len(scheduled); j++ {
			assert.False(t, scheduled[i].Overlaps(scheduled[j].StartTime, scheduled[j].EndTime))
		}
	}
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		actor func(f *fixture) model.Actor
		setup func(t *testing.T, f *fixture, apt *model.Appointment)
		want  apperrors.ErrorCode
	}{
		{name: "patient", actor: func(f *fixture) model.Actor { return f.patient }},
		{name: "doctor", actor: func(f *fixture) model.Actor { return f.doctor }},
		{name: "admin", actor: func(f *fixture) model.Actor { return f.admin }},
		{
			name:  "stranger",
			actor: func(f *fixture) model.Actor { return model.Actor{ID: uuid.New(), Role: model.RolePatient} },
			want:  apperrors.ErrForbidden,
		},
		{
			name:  "already cancelled",
			actor: func(f *fixture) model.Actor { return f.patient },
			setup: func(t *testing.T, f *fixture, apt *model.Appointment) {
				_, err := f.svc.Cancel(ctx, apt.ID, f.doctor)
				require.NoError(t, err)
			},
			want: apperrors.ErrInvalidState,
		},
		{
			name:  "completed",
			actor: func(f *fixture) model.Actor { return f.admin },
			setup: func(t *testing.T, f *fixture, apt *model.Appointment) {
				f.clock.Set(apt.EndTime)
				_, err := f.svc.Complete(ctx, apt.ID, f.doctor)
				require.NoError(t, err)
			},
			want: apperrors.ErrInvalidState,
		},
		{
			name:  "stranger on cancelled gets authorization error",
			actor: func(f *fixture) model.Actor { return model.Actor{ID: uuid.New(), Role: model.RoleDoctor} },
			setup: func(t *testing.T, f *fixture, apt *model.Appointment) {
				_, err := f.svc.Cancel(ctx, apt.ID, f.patient)
				require.NoError(t, err)
			},
			want: apperrors.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			apt := f.book(t)
			if tt.setup != nil {
				tt.setup(t, f, apt)
			}

			got, err := f.svc.Cancel(ctx, apt.ID, tt.actor(f))
			if tt.want != 0 {
				assertCode(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
		})
	}
}

func TestService_CancelUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), uuid.New(), f.admin)
	assertCode(t, err, apperrors.ErrNotFound)
}

func TestService_CompleteTimeGate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		at   func(apt *model.Appointment) time.Time
		want apperrors.ErrorCode
	}{
		{name: "during the appointment", at: func(a *model.Appointment) time.Time { return a.StartTime.Add(time.Minute) }, want: apperrors.ErrTooEarly},
		{name: "one second before end", at: func(a *model.Appointment) time.Time { return a.EndTime.Add(-time.Second) }, want: apperrors.ErrTooEarly},
		{name: "exactly at end", at: func(a *model.Appointment) time.Time { return a.EndTime }},
		{name: "after end", at: func(a *model.Appointment) time.Time { return a.EndTime.Add(3 * time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			apt := f.book(t)
			f.clock.Set(tt.at(apt))

			got, err := f.svc.Complete(ctx, apt.ID, f.doctor)
			if tt.want != 0 {
				assertCode(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.AppointmentStatusCompleted, got.Status)
			assert.Equal(t, tt.at(apt), got.UpdatedAt)
		})
	}
}

func TestService_CompleteAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t)
	f.clock.Set(apt.EndTime)
	otherDoctor := f.addDoctor(t, model.VerificationVerified)

	for _, actor := range []model.Actor{f.patient, f.admin, otherDoctor} {
		_, err := f.svc.Complete(ctx, apt.ID, actor)
		assertCode(t, err, apperrors.ErrForbidden)
	}

	// authorization is checked before time
	f.clock.Set(apt.StartTime)
	_, err := f.svc.Complete(ctx, apt.ID, f.patient)
	assertCode(t, err, apperrors.ErrForbidden)
}

func TestService_CancelCompleteRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		apt := f.book(t)
		f.clock.Set(apt.EndTime)

		var (
			wg                     sync.WaitGroup
			cancelErr, completeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.Cancel(context.Background(), apt.ID, f.patient)
		}()
		go func() {
			defer wg.Done()
			_, completeErr = f.svc.Complete(context.Background(), apt.ID, f.doctor)
		}()
		wg.Wait()

		// exactly one winner, the loser sees a state error
		require.True(t, (cancelErr == nil) != (completeErr == nil), "cancel=%v complete=%v", cancelErr, completeErr)
		final, err := f.repos.Appointments.Get(context.Background(), apt.ID)
		require.NoError(t, err)
		if cancelErr == nil {
			assertCode(t, completeErr, apperrors.ErrInvalidState)
			assert.Equal(t, model.AppointmentStatusCancelled, final.Status)
		} else {
			assertCode(t, cancelErr, apperrors.ErrInvalidState)
			assert.Equal(t, model.AppointmentStatusCompleted, final.Status)
		}
	}
}

func TestService_SetNotesCountsCharacters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t)

	notes := strings.Repeat("é", MaxNotesLength)
	got, err := f.svc.SetNotes(ctx, apt.ID, f.doctor, notes)
	require.NoError(t, err)
	assert.Equal(t, notes, got.Notes)

	_, err = f.svc.SetNotes(ctx, apt.ID, f.doctor, notes+"é")
	assertCode(t, err, apperrors.ErrBadRequest)
}

func TestService_SetNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t)

	_, err := f.svc.SetNotes(ctx, apt.ID, f.doctor, "first")
	require.NoError(t, err)
	got, err := f.svc.SetNotes(ctx, apt.ID, f.doctor, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Notes)

	_, err = f.svc.SetNotes(ctx, apt.ID, f.patient, "patient note")
	assertCode(t, err, apperrors.ErrForbidden)
	_, err = f.svc.SetNotes(ctx, apt.ID, f.admin, "admin note")
	assertCode(t, err, apperrors.ErrForbidden)

	_, err = f.svc.SetNotes(ctx, apt.ID, f.doctor, strings.Repeat("x", MaxNotesLength+1))
	assertCode(t, err, apperrors.ErrBadRequest)

	f.clock.Set(apt.EndTime)
	_, err = f.svc.Complete(ctx, apt.ID, f.doctor)
	require.NoError(t, err)

	_, err = f.svc.SetNotes(ctx, apt.ID, f.doctor, "too late")
	assertCode(t, err, apperrors.ErrInvalidState)

	stored, err := f.repos.Appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Notes)
}

func TestService_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()

	for _, terminal := range []model.AppointmentStatus{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			apt := f.book(t)
			f.clock.Set(apt.EndTime)

			var err error
			if terminal == model.AppointmentStatusCompleted {
				_, err = f.svc.Complete(ctx, apt.ID, f.doctor)
			} else {
				_, err = f.svc.Cancel(ctx, apt.ID, f.doctor)
			}
			require.NoError(t, err)

			_, err = f.svc.Cancel(ctx, apt.ID, f.patient)
			assertCode(t, err, apperrors.ErrInvalidState)
			_, err = f.svc.Complete(ctx, apt.ID, f.doctor)
			assertCode(t, err, apperrors.ErrInvalidState)
			_, err = f.svc.SetNotes(ctx, apt.ID, f.doctor, "x")
			assertCode(t, err, apperrors.ErrInvalidState)

			final, err := f.repos.Appointments.Get(ctx, apt.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, final.Status)
		})
	}
}

func TestService_GetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t)

	otherPatient := model.Actor{ID: uuid.New(), Role: model.RolePatient}
	_, err := f.svc.Book(ctx, otherPatient, f.doctor.ID, apt.EndTime, apt.EndTime.Add(time.Hour))
	require.NoError(t, err)

	for _, actor := range []model.Actor{f.patient, f.doctor, f.admin} {
		got, err := f.svc.Get(ctx, apt.ID, actor)
		require.NoError(t, err)
		assert.Equal(t, apt.ID, got.ID)
	}
	_, err = f.svc.Get(ctx, apt.ID, otherPatient)
	assertCode(t, err, apperrors.ErrForbidden)

	mine, err := f.svc.ListForActor(ctx, f.patient, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	doctors, err := f.svc.ListForActor(ctx, f.doctor, model.AppointmentStatusScheduled)
	require.NoError(t, err)
	assert.Len(t, doctors, 2)

	all, err := f.svc.ListForActor(ctx, f.admin, model.AppointmentStatusCancelled)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.svc.ListForActor(ctx, f.admin, "BOGUS")
	assertCode(t, err, apperrors.ErrBadRequest)
}

func TestService_CancelledContextIsTransient(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Cancel(ctx, apt.ID, f.patient)
	assertCode(t, err, apperrors.ErrTransient)

	stored, err := f.repos.Appointments.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
}

func TestService_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t)
	_, err := f.svc.SetNotes(ctx, apt.ID, f.doctor, "notes")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, apt.ID, f.patient)
	require.NoError(t, err)

	events, err := f.repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{
		string(event.AppointmentBooked),
		string(event.AppointmentNotesUpdated),
		string(event.AppointmentCancelled),
	}, types)
}
