package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of caller roles.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// Valid returns true iff the value is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Scan implements sql.Scanner and expects src to be nil or of type string or []byte
func (r *Role) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch src := src.(type) {
	case []byte:
		*r = Role(string(src))
	case string:
		*r = Role(src)
	default:
		return fmt.Errorf("unsupported type for Role.Scan: %T", src)
	}
	if !r.Valid() {
		return fmt.Errorf("'%s' is not a valid Role", string(*r))
	}
	return nil
}

// Value implements sql/driver.Valuer
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("'%s' is not a valid Role", string(r))
	}
	return string(r), nil
}

// Account is an authenticated identity on the platform.
type Account struct {
	Base
	Email        string `db:"email" json:"email"`
	Name         string `db:"name" json:"name"`
	Role         Role   `db:"role" json:"role"`
	PasswordHash string `db:"password_hash" json:"-"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RegisterRequest creates a patient or doctor account. Admin accounts are
// provisioned out of band.
type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Name            string `json:"name" binding:"required,max=200"`
	Password        string `json:"password" binding:"required,min=8"`
	Role            Role   `json:"role" binding:"required,oneof=PATIENT DOCTOR"`
	Specialty       string `json:"specialty" binding:"required_if=Role DOCTOR,max=100"`
	ExperienceYears int    `json:"experience_years" binding:"min=0,max=80"`
	CredentialURL   string `json:"credential_url" binding:"omitempty,url"`
	Description     string `json:"description" binding:"max=2000"`
}
