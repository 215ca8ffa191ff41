package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "SCHEDULED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transition.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// Scan implements sql.Scanner and expects src to be nil or of type string or []byte
func (s *AppointmentStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch src := src.(type) {
	case []byte:
		*s = AppointmentStatus(string(src))
	case string:
		*s = AppointmentStatus(src)
	default:
		return fmt.Errorf("unsupported type for AppointmentStatus.Scan: %T", src)
	}
	if !s.Valid() {
		return fmt.Errorf("'%s' is not a valid AppointmentStatus", string(*s))
	}
	return nil
}

// Value implements sql/driver.Valuer
func (s AppointmentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("'%s' is not a valid AppointmentStatus", string(s))
	}
	return string(s), nil
}

type Appointment struct {
	Base
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	StartTime      time.Time         `db:"start_time" json:"start_time"`
	EndTime        time.Time         `db:"end_time" json:"end_time"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Notes          string            `db:"notes" json:"notes,omitempty"`
	VideoSessionID *string           `db:"video_session_id" json:"video_session_id,omitempty"`
}

// IsParticipant reports whether id is the patient or the doctor.
func (a *Appointment) IsParticipant(id uuid.UUID) bool {
	return a.PatientID == id || a.DoctorID == id
}

// Overlaps uses half-open intervals: [a, b) and [b, c) do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

// Clone returns a copy that does not share the session pointer.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.VideoSessionID != nil {
		id := *a.VideoSessionID
		cp.VideoSessionID = &id
	}
	return &cp
}

// BookAppointmentRequest leaves the times unchecked; the booking rules
// report a missing or inverted interval as INVALID_INTERVAL.
type BookAppointmentRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type SetNotesRequest struct {
	Notes string `json:"notes" binding:"max=5000"`
}

// AppointmentFilters narrows a listing; zero values are ignored.
type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
}
