package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus tracks admin review of a doctor account.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Terminal reports whether no further review transition is allowed.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationVerified || s == VerificationRejected
}

// Scan implements sql.Scanner and expects src to be nil or of type string or []byte
func (s *VerificationStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch src := src.(type) {
	case []byte:
		*s = VerificationStatus(string(src))
	case string:
		*s = VerificationStatus(src)
	default:
		return fmt.Errorf("unsupported type for VerificationStatus.Scan: %T", src)
	}
	if !s.Valid() {
		return fmt.Errorf("'%s' is not a valid VerificationStatus", string(*s))
	}
	return nil
}

// Value implements sql/driver.Valuer
func (s VerificationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("'%s' is not a valid VerificationStatus", string(s))
	}
	return string(s), nil
}

// DoctorProfile is 1:1 with a DOCTOR account and shares its ID.
type DoctorProfile struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Email              string             `db:"email" json:"email"`
	Specialty          string             `db:"specialty" json:"specialty"`
	ExperienceYears    int                `db:"experience_years" json:"experience_years"`
	CredentialURL      string             `db:"credential_url" json:"credential_url,omitempty"`
	Description        string             `db:"description" json:"description,omitempty"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}
