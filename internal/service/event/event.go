package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
)

type EventType string

const (
	AppointmentBooked             EventType = "appointment.booked"
	AppointmentCancelled          EventType = "appointment.cancelled"
	AppointmentCompleted          EventType = "appointment.completed"
	AppointmentNotesUpdated       EventType = "appointment.notes_updated"
	AppointmentVideoSessionOpened EventType = "appointment.video_session_opened"
	DoctorApproved                EventType = "doctor.approved"
	DoctorRejected                EventType = "doctor.rejected"
)

// Recorder stores a domain event after the state change it describes has
// been committed.
type Recorder interface {
	Record(ctx context.Context, eventType EventType, payload interface{})
}

type AppointmentPayload struct {
	AppointmentID  uuid.UUID               `json:"appointment_id"`
	PatientID      uuid.UUID               `json:"patient_id"`
	DoctorID       uuid.UUID               `json:"doctor_id"`
	StartTime      time.Time               `json:"start_time"`
	EndTime        time.Time               `json:"end_time"`
	Status         model.AppointmentStatus `json:"status"`
	VideoSessionID string                  `json:"video_session_id,omitempty"`
	ActorID        uuid.UUID               `json:"actor_id"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

func NewAppointmentPayload(a *model.Appointment, actor model.Actor, at time.Time) AppointmentPayload {
	p := AppointmentPayload{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status,
		ActorID:       actor.ID,
		OccurredAt:    at,
	}
	if a.VideoSessionID != nil {
		p.VideoSessionID = *a.VideoSessionID
	}
	return p
}

type DoctorPayload struct {
	DoctorID   uuid.UUID                `json:"doctor_id"`
	Name       string                   `json:"name"`
	Email      string                   `json:"email"`
	Status     model.VerificationStatus `json:"status"`
	ActorID    uuid.UUID                `json:"actor_id"`
	OccurredAt time.Time                `json:"occurred_at"`
}

func NewDoctorPayload(d *model.DoctorProfile, actor model.Actor, at time.Time) DoctorPayload {
	return DoctorPayload{
		DoctorID:   d.ID,
		Name:       d.Name,
		Email:      d.Email,
		Status:     d.VerificationStatus,
		ActorID:    actor.ID,
		OccurredAt: at,
	}
}
