package video

import (
	"context"
	"errors"
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
	"github.com/medimeet/appointment-api/pkg/video"
)

// start is T; the appointment runs [T, T+30m).
var start = time.Date(2030, 7, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repos   *repository.Store
	clock   *clock.ManagedClock
	minter  *video.Minter
	apt     *model.Appointment
	patient model.Actor
	doctor  model.Actor
}

func newFixture(t *testing.T, wrap func(repository.AppointmentRepository) repository.AppointmentRepository) *fixture {
	t.Helper()
	repos := memory.New().Repositories()
	clk := clock.NewManaged(start.Add(-24 * time.Hour))

	f := &fixture{
		repos:   repos,
		clock:   clk,
		minter:  video.NewMinter("test-key", "test-secret", time.Hour),
		patient: model.Actor{ID: uuid.New(), Role: model.RolePatient},
		doctor:  model.Actor{ID: uuid.New(), Role: model.RoleDoctor},
	}
	f.apt = &model.Appointment{
		Base:      model.Base{ID: uuid.New(), CreatedAt: clk.Now(), UpdatedAt: clk.Now()},
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
	}
	require.NoError(t, repos.Appointments.Create(context.Background(), f.apt))

	appointments := repos.Appointments
	if wrap != nil {
		appointments = wrap(appointments)
	}
	events := event.NewEventService(repos.Outbox, clk, logger.NewNop())
	f.svc = NewService(appointments, f.minter, events, clk, logger.NewNop(), metrics.New("test"),
		Config{JoinLead: 30 * time.Minute})
	return f
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code, "got %v", err)
}

func TestService_JoinWindow(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want apperrors.ErrorCode
	}{
		{name: "T-31m", at: start.Add(-31 * time.Minute), want: apperrors.ErrTooEarly},
		{name: "T-30m", at: start.Add(-30 * time.Minute)},
		{name: "T", at: start},
		{name: "T+30m", at: start.Add(30 * time.Minute)},
		{name: "T+31m", at: start.Add(31 * time.Minute), want: apperrors.ErrWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.clock.Set(tt.at)

			join, err := f.svc.RequestJoin(context.Background(), f.apt.ID, f.patient)
			if tt.want != 0 {
				assertCode(t, err, tt.want)

				stored, err := f.repos.Appointments.Get(context.Background(), f.apt.ID)
				require.NoError(t, err)
				assert.Nil(t, stored.VideoSessionID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, f.apt.ID, join.AppointmentID)
			assert.NotEmpty(t, join.SessionID)
			assert.NotEmpty(t, join.Token)
			assert.Equal(t, tt.at.Add(time.Hour), join.ExpiresAt)
		})
	}
}

func TestService_JoinAuthorizationAndState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.clock.Set(start)

	admin := model.Actor{ID: uuid.New(), Role: model.RoleAdmin}
	_, err := f.svc.RequestJoin(ctx, f.apt.ID, admin)
	assertCode(t, err, apperrors.ErrForbidden)

	stranger := model.Actor{ID: uuid.New(), Role: model.RoleDoctor}
	_, err = f.svc.RequestJoin(ctx, f.apt.ID, stranger)
	assertCode(t, err, apperrors.ErrForbidden)

	_, err = f.svc.RequestJoin(ctx, uuid.New(), f.patient)
	assertCode(t, err, apperrors.ErrNotFound)

	_, err = f.repos.Appointments.TransitionStatus(ctx, f.apt.ID, model.AppointmentStatusScheduled, model.AppointmentStatusCancelled, start)
	require.NoError(t, err)
	_, err = f.svc.RequestJoin(ctx, f.apt.ID, f.doctor)
	assertCode(t, err, apperrors.ErrInvalidState)
}

func TestService_SessionIsReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.clock.Set(start.Add(-10 * time.Minute))

	first, err := f.svc.RequestJoin(ctx, f.apt.ID, f.patient)
	require.NoError(t, err)
	second, err := f.svc.RequestJoin(ctx, f.apt.ID, f.patient)
	require.NoError(t, err)
	third, err := f.svc.RequestJoin(ctx, f.apt.ID, f.doctor)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.SessionID, third.SessionID)
	// every call mints a new credential
	assert.NotEqual(t, first.Token, second.Token)

	stored, err := f.repos.Appointments.Get(ctx, f.apt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VideoSessionID)
	assert.Equal(t, first.SessionID, *stored.VideoSessionID)

	claims, err := f.minter.Parse(third.Token, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID.String(), claims.Grants.Identity)
	assert.Equal(t, first.SessionID, claims.Grants.Video.Room)

	events, err := f.repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(event.AppointmentVideoSessionOpened), events[0].EventType)
}

// rendezvousRepository holds every Get until n callers have read, so they
// all observe the appointment without a session.
type rendezvousRepository struct {
	repository.AppointmentRepository
	arrived sync.WaitGroup
}

func (r *rendezvousRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := r.AppointmentRepository.Get(ctx, id)
	r.arrived.Done()
	r.arrived.Wait()
	return apt, err
}

func TestService_ConcurrentFirstJoinsConverge(t *testing.T) {
	const n = 2
	rendezvous := &rendezvousRepository{}
	rendezvous.arrived.Add(n)
	f := newFixture(t, func(inner repository.AppointmentRepository) repository.AppointmentRepository {
		rendezvous.AppointmentRepository = inner
		return rendezvous
	})
	f.clock.Set(start)

	var (
		wg    sync.WaitGroup
		joins [n]*model.VideoJoin
		errs  [n]error
	)
	actors := [n]model.Actor{f.patient, f.doctor}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			joins[i], errs[i] = f.svc.RequestJoin(context.Background(), f.apt.ID, actors[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, joins[0].SessionID, joins[1].SessionID)

	stored, err := f.repos.Appointments.Get(context.Background(), f.apt.ID)
	require.NoError(t, err)
	assert.Equal(t, joins[0].SessionID, *stored.VideoSessionID)

	events, err := f.repos.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestService_LosingCandidateAdoptsStoredSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.clock.Set(start)

	// another instance opened the session between our read and write
	_, err := f.repos.Appointments.AssignVideoSession(ctx, f.apt.ID, "vs_existing", start)
	require.NoError(t, err)
	f.svc.newSessionID = func() string { return "vs_ours" }

	join, err := f.svc.session(ctx, f.apt, f.patient, start)
	require.NoError(t, err)
	assert.Equal(t, "vs_existing", join)
}

type failingMinter struct{}

func (failingMinter) Mint(string, string, time.Time) (*video.Token, error) {
	return nil, errors.New("signing key unavailable")
}

func TestService_MintFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Set(start)
	f.svc.minter = failingMinter{}

	_, err := f.svc.RequestJoin(context.Background(), f.apt.ID, f.patient)
	assertCode(t, err, apperrors.ErrInternal)
}

func TestService_CancelledContextIsTransient(t *testing.T) {
	f := newFixture(t, nil)
	f.clock.Set(start)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.RequestJoin(ctx, f.apt.ID, f.patient)
	assertCode(t, err, apperrors.ErrTransient)
	assert.True(t, apperrors.IsTransient(err))
}
