package appointment

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service"
	"github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/pkg/clock"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/metrics"
)

const MaxNotesLength = 5000

// Service owns the appointment lifecycle. SCHEDULED is the only state that
// admits a transition; COMPLETED and CANCELLED are final.
//
// Every mutation checks, in order, that the appointment exists, that the
// actor may perform it, that the status allows it and that the clock allows
// it. The check is then repeated by the conditional write itself, so a
// request that loses a race gets ErrInvalidState.
type Service struct {
	appointments repository.AppointmentRepository
	doctors      repository.DoctorRepository
	events       event.Recorder
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(
	appointments repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	events event.Recorder,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		appointments: appointments,
		doctors:      doctors,
		events:       events,
		clock:        clk,
		logger:       logger,
		metrics:      metrics,
	}
}

func (s *Service) validateAppointmentTime(startTime, endTime, now time.Time) error {
	if startTime.IsZero() || endTime.IsZero() {
		return apperrors.InvalidInterval("start_time and end_time are required")
	}
	if !endTime.After(startTime) {
		return apperrors.InvalidInterval("end_time must be after start_time")
	}
	// INVALID_INTERVAL is reserved for malformed ranges; a past start is a
	// plain bad request.
	if startTime.Before(now) {
		return apperrors.BadRequest("appointment cannot start in the past", nil)
	}
	return nil
}

// Book schedules an appointment for the calling patient.
func (s *Service) Book(ctx context.Context, actor model.Actor, doctorID uuid.UUID, startTime, endTime time.Time) (*model.Appointment, error) {
	apt, err := s.book(ctx, actor, doctorID, startTime, endTime)
	s.metrics.ObserveTransition("book", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment booked",
		"appointment_id", apt.ID.String(),
		"doctor_id", apt.DoctorID.String(),
		"patient_id", apt.PatientID.String())
	s.events.Record(ctx, event.AppointmentBooked, event.NewAppointmentPayload(apt, actor, apt.CreatedAt))
	return apt, nil
}

func (s *Service) book(ctx context.Context, actor model.Actor, doctorID uuid.UUID, startTime, endTime time.Time) (*model.Appointment, error) {
	if actor.Role != model.RolePatient {
		return nil, apperrors.Forbidden("only patients can book appointments")
	}

	now := s.clock.Now()
	startTime, endTime = startTime.UTC(), endTime.UTC()
	if err := s.validateAppointmentTime(startTime, endTime, now); err != nil {
		return nil, err
	}

	doctor, err := s.doctors.Get(ctx, doctorID)
	if err != nil {
		return nil, service.StorageError(err, "doctor")
	}
	if doctor.VerificationStatus != model.VerificationVerified {
		return nil, apperrors.UnverifiedDoctor("doctor is not verified")
	}

	apt := &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID: actor.ID,
		DoctorID:  doctor.ID,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    model.AppointmentStatusScheduled,
	}
	if err := s.appointments.Create(ctx, apt); err != nil {
		return nil, service.StorageError(err, "appointment")
	}
	return apt, nil
}

// Cancel is open to both participants and to administrators.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	apt, err := s.cancel(ctx, id, actor)
	s.metrics.ObserveTransition("cancel", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment cancelled", "appointment_id", apt.ID.String(), "actor_id", actor.ID.String())
	s.events.Record(ctx, event.AppointmentCancelled, event.NewAppointmentPayload(apt, actor, apt.UpdatedAt))
	return apt, nil
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !current.IsParticipant(actor.ID) {
		return nil, apperrors.Forbidden("only participants or administrators can cancel an appointment")
	}
	if err := requireScheduled(current); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, model.AppointmentStatusCancelled)
}

// Complete may only be called by the assigned doctor once the end time has
// been reached.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	apt, err := s.complete(ctx, id, actor)
	s.metrics.ObserveTransition("complete", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment completed", "appointment_id", apt.ID.String(), "actor_id", actor.ID.String())
	s.events.Record(ctx, event.AppointmentCompleted, event.NewAppointmentPayload(apt, actor, apt.UpdatedAt))
	return apt, nil
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAssignedDoctor(current, actor) {
		return nil, apperrors.Forbidden("only the assigned doctor can complete an appointment")
	}
	if err := requireScheduled(current); err != nil {
		return nil, err
	}
	if s.clock.Now().Before(current.EndTime) {
		return nil, apperrors.TooEarly("appointment cannot be completed before its end time")
	}
	return s.transition(ctx, id, model.AppointmentStatusCompleted)
}

// SetNotes replaces the notes; the last write wins.
func (s *Service) SetNotes(ctx context.Context, id uuid.UUID, actor model.Actor, notes string) (*model.Appointment, error) {
	apt, err := s.setNotes(ctx, id, actor, notes)
	s.metrics.ObserveTransition("set_notes", err)
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, event.AppointmentNotesUpdated, event.NewAppointmentPayload(apt, actor, apt.UpdatedAt))
	return apt, nil
}

func (s *Service) setNotes(ctx context.Context, id uuid.UUID, actor model.Actor, notes string) (*model.Appointment, error) {
	// Counted in characters, matching the binding:"max" check on the request.
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return nil, apperrors.BadRequest(fmt.Sprintf("notes must be at most %d characters", MaxNotesLength), nil)
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAssignedDoctor(current, actor) {
		return nil, apperrors.Forbidden("only the assigned doctor can write notes")
	}
	if err := requireScheduled(current); err != nil {
		return nil, err
	}

	apt, err := s.appointments.UpdateNotes(ctx, id, notes, s.clock.Now())
	if err != nil {
		return nil, s.writeError(err)
	}
	return apt, nil
}

// Get is visible to the participants and to administrators.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !apt.IsParticipant(actor.ID) {
		return nil, apperrors.Forbidden("not a participant of this appointment")
	}
	return apt, nil
}

// ListForActor returns the caller's own appointments; administrators see
// all of them. An empty status matches every status.
func (s *Service) ListForActor(ctx context.Context, actor model.Actor, status model.AppointmentStatus) ([]*model.Appointment, error) {
	if status != "" && !status.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown status %q", status), nil)
	}

	filters := &model.AppointmentFilters{Status: status}
	switch actor.Role {
	case model.RolePatient:
		filters.PatientID = actor.ID
	case model.RoleDoctor:
		filters.DoctorID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, apperrors.Forbidden("unknown role")
	}

	appointments, err := s.appointments.List(ctx, filters)
	if err != nil {
		return nil, service.StorageError(err, "appointment")
	}
	return appointments, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, service.StorageError(err, "appointment")
	}
	return apt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to model.AppointmentStatus) (*model.Appointment, error) {
	apt, err := s.appointments.TransitionStatus(ctx, id, model.AppointmentStatusScheduled, to, s.clock.Now())
	if err != nil {
		return nil, s.writeError(err)
	}
	return apt, nil
}

// writeError reports a lost race on the conditional write as a state error.
func (s *Service) writeError(err error) error {
	appErr := service.StorageError(err, "appointment")
	if apperrors.Is(appErr, apperrors.ErrInvalidState) {
		return apperrors.InvalidState("appointment is no longer scheduled")
	}
	return appErr
}

func requireScheduled(apt *model.Appointment) error {
	if apt.Status != model.AppointmentStatusScheduled {
		return apperrors.InvalidState(fmt.Sprintf("appointment is %s", apt.Status))
	}
	return nil
}

func isAssignedDoctor(apt *model.Appointment, actor model.Actor) bool {
	return actor.Role == model.RoleDoctor && apt.DoctorID == actor.ID
}
