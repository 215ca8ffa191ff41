package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `id, patient_id, doctor_id, start_time, end_time, status, notes,
	video_session_id, created_at, updated_at`

// Create relies on appointments_no_overlap, so the overlap check and the
// insert are a single statement.
func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.Notes,
		appointment.VideoSessionID,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return classify(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, classify(err, "get appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters != nil {
		if filters.PatientID != uuid.Nil {
			args = append(args, filters.PatientID)
			where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
		}
		if filters.DoctorID != uuid.Nil {
			args = append(args, filters.DoctorID)
			where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
		}
		if filters.Status != "" {
			args = append(args, filters.Status)
			where = append(where, fmt.Sprintf("status = $%d", len(args)))
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time ASC, id ASC`

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, classify(err, "list appointments")
	}
	return appointments, nil
}

func (r *appointmentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns

	return r.guardedUpdate(ctx, "transition appointment", id, query, id, from, to, at)
}

func (r *appointmentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET notes = $2, updated_at = $3
		WHERE id = $1 AND status = 'SCHEDULED'
		RETURNING ` + appointmentColumns

	return r.guardedUpdate(ctx, "update appointment notes", id, query, id, notes, at)
}

// AssignVideoSession is a compare-and-set: the first stored id wins and every
// later caller reads it back.
func (r *appointmentRepository) AssignVideoSession(ctx context.Context, id uuid.UUID, sessionID string, at time.Time) (string, error) {
	query := `
		UPDATE appointments
		SET video_session_id = COALESCE(video_session_id, $2),
			updated_at = CASE WHEN video_session_id IS NULL THEN $3 ELSE updated_at END
		WHERE id = $1 AND status = 'SCHEDULED'
		RETURNING video_session_id`

	var stored string
	if err := r.db.GetContext(ctx, &stored, query, id, sessionID, at); err != nil {
		err = classify(err, "assign video session")
		if errors.Is(err, repository.ErrNotFound) {
			return "", r.missingOrStale(ctx, "appointments", id, "assign video session")
		}
		return "", err
	}
	return stored, nil
}

func (r *appointmentRepository) guardedUpdate(ctx context.Context, op string, id uuid.UUID, query string, args ...interface{}) (*model.Appointment, error) {
	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, args...); err != nil {
		err = classify(err, op)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, r.missingOrStale(ctx, "appointments", id, op)
		}
		return nil, err
	}
	return &appointment, nil
}
