package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

func newMock(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewBaseRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

var appointmentCols = []string{
	"id", "patient_id", "doctor_id", "start_time", "end_time", "status", "notes",
	"video_session_id", "created_at", "updated_at",
}

func appointmentRow(id, patientID, doctorID uuid.UUID, status model.AppointmentStatus, session driver.Value) *sqlmock.Rows {
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(appointmentCols).AddRow(
		id.String(), patientID.String(), doctorID.String(), start, start.Add(30*time.Minute),
		string(status), "", session, start.Add(-time.Hour), start.Add(-time.Hour),
	)
}

func TestAppointmentRepository_Create(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

	appt := &model.Appointment{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), appt))
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_Create_Overlap(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "appointments_no_overlap"})

	err := repo.Create(context.Background(), &model.Appointment{Status: model.AppointmentStatusScheduled})
	assert.ErrorIs(t, err, repository.ErrOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_TransitionStatus(t *testing.T) {
	id, patientID, doctorID := uuid.New(), uuid.New(), uuid.New()
	at := time.Date(2030, 1, 1, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "applied",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("UPDATE appointments")).
					WithArgs(id, model.AppointmentStatusScheduled, model.AppointmentStatusCompleted, at).
					WillReturnRows(appointmentRow(id, patientID, doctorID, model.AppointmentStatusCompleted, nil))
			},
		},
		{
			name: "status changed concurrently",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("UPDATE appointments")).
					WillReturnRows(sqlmock.NewRows(appointmentCols))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WithArgs(id).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: repository.ErrPreconditionFailed,
		},
		{
			name: "missing",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("UPDATE appointments")).
					WillReturnRows(sqlmock.NewRows(appointmentCols))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WithArgs(id).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: repository.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMock(t)
			repo := NewAppointmentRepository(base)
			tt.setup(mock)

			appt, err := repo.TransitionStatus(context.Background(), id,
				model.AppointmentStatusScheduled, model.AppointmentStatusCompleted, at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, appt)
			} else {
				require.NoError(t, err)
				assert.Equal(t, model.AppointmentStatusCompleted, appt.Status)
				assert.Equal(t, id, appt.ID)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppointmentRepository_AssignVideoSession(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(video_session_id, $2)")).
		WithArgs(id, "vs_new", at).
		WillReturnRows(sqlmock.NewRows([]string{"video_session_id"}).AddRow("vs_existing"))

	stored, err := repo.AssignVideoSession(context.Background(), id, "vs_new", at)
	require.NoError(t, err)
	assert.Equal(t, "vs_existing", stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_List(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAppointmentRepository(base)
	id, patientID, doctorID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE patient_id = $1 AND status = $2 ORDER BY start_time")).
		WithArgs(patientID, model.AppointmentStatusScheduled).
		WillReturnRows(appointmentRow(id, patientID, doctorID, model.AppointmentStatusScheduled, "vs_1"))

	list, err := repo.List(context.Background(), &model.AppointmentFilters{
		PatientID: patientID,
		Status:    model.AppointmentStatusScheduled,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].VideoSessionID)
	assert.Equal(t, "vs_1", *list[0].VideoSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateDoctor(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAccountRepository(base)
	now := time.Now().UTC()

	account := &model.Account{
		Base:  model.Base{CreatedAt: now, UpdatedAt: now},
		Email: "doc@example.com",
		Name:  "Dr. Who",
		Role:  model.RoleDoctor,
	}
	profile := &model.DoctorProfile{
		Specialty:          "cardiology",
		VerificationStatus: model.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO doctors")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), account, profile))
	assert.Equal(t, account.ID, profile.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_CreateRollsBack(t *testing.T) {
	base, mock := newMock(t)
	repo := NewAccountRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO doctors")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "doctors_pkey"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(),
		&model.Account{Email: "doc@example.com", Role: model.RoleDoctor},
		&model.DoctorProfile{VerificationStatus: model.VerificationPending})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepository_TransitionStatus(t *testing.T) {
	base, mock := newMock(t)
	repo := NewDoctorRepository(base)
	id := uuid.New()
	now := time.Now().UTC()

	cols := []string{
		"id", "name", "email", "specialty", "experience_years", "credential_url",
		"description", "verification_status", "created_at", "updated_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE doctors")).
		WithArgs(id, model.VerificationPending, model.VerificationVerified, now).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id.String(), "Dr. Who", "doc@example.com", "cardiology", 10, "", "", "VERIFIED", now, now,
		))

	doctor, err := repo.TransitionStatus(context.Background(), id,
		model.VerificationPending, model.VerificationVerified, now)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationVerified, doctor.VerificationStatus)
	assert.Equal(t, "Dr. Who", doctor.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_GetPendingEvents(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOutboxRepository(base)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(model.OutboxStatusPending, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "payload", "status", "error_message", "retry_count",
			"created_at", "processed_at", "updated_at",
		}).AddRow(id.String(), "appointment.booked", []byte(`{"a":1}`), "PENDING", nil, 0, now, nil, now))

	events, err := repo.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"a":1}`, string(events[0].Payload))
	assert.Equal(t, json.RawMessage(`{"a":1}`), events[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantIs        error
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantTransient: true},
		{name: "bad conn", err: driver.ErrBadConn, wantTransient: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, wantTransient: true},
		{name: "connection exception class", err: &pq.Error{Code: "08006"}, wantTransient: true},
		{name: "exclusion violation", err: &pq.Error{Code: "23P01"}, wantIs: repository.ErrOverlap},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, wantIs: repository.ErrDuplicate},
		{name: "check violation", err: &pq.Error{Code: "23514"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "op")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, apperrors.IsTransient(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}

	assert.NoError(t, classify(nil, "op"))
}
