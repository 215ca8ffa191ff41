package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrPreconditionFailed means the row exists but the guarded status did not match.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrOverlap is returned when a SCHEDULED appointment already holds part of the interval.
	ErrOverlap   = errors.New("overlapping appointment")
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	// AccountRepository handles account operations
	AccountRepository interface {
		// Create stores the account and, when profile is non-nil, its doctor
		// profile in the same transaction.
		Create(ctx context.Context, account *model.Account, profile *model.DoctorProfile) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
		// ListByStatus returns profiles ordered by creation time ascending. An
		// empty specialty matches every specialty.
		ListByStatus(ctx context.Context, status model.VerificationStatus, specialty string) ([]*model.DoctorProfile, error)
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.VerificationStatus, at time.Time) (*model.DoctorProfile, error)
	}

	AppointmentRepository interface {
		// Create fails with ErrOverlap when the doctor already has a SCHEDULED
		// appointment intersecting [StartTime, EndTime).
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, at time.Time) (*model.Appointment, error)
		// UpdateNotes only writes while the appointment is SCHEDULED.
		UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) (*model.Appointment, error)
		// AssignVideoSession sets the session id if none is stored yet and returns
		// whichever id is stored afterwards.
		AssignVideoSession(ctx context.Context, id uuid.UUID, sessionID string, at time.Time) (string, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Store bundles the repositories a deployment is wired with.
type Store struct {
	Accounts     AccountRepository
	Doctors      DoctorRepository
	Appointments AppointmentRepository
	Outbox       OutboxRepository
	// Ping reports storage readiness.
	Ping func(ctx context.Context) error
}
