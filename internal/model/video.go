package model

import (
	"time"

	"github.com/google/uuid"
)

// VideoJoin is the credential handed to a participant joining the call.
type VideoJoin struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SessionID     string    `json:"session_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
}
