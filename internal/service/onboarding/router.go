// Package onboarding decides where the presentation layer sends a caller
// after sign-in.
package onboarding

import (
	"context"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

type Destination string

const (
	DestinationOnboarding         Destination = "/onboarding"
	DestinationDoctorDirectory    Destination = "/doctors"
	DestinationDoctorDashboard    Destination = "/doctor"
	DestinationVerificationStatus Destination = "/doctor/verification"
	DestinationAdminConsole       Destination = "/admin"
)

// RouteFor maps an account to its landing destination. status is only
// consulted for doctors; pass "" when the doctor has no profile.
func RouteFor(account *model.Account, status model.VerificationStatus) Destination {
	if account == nil {
		return DestinationOnboarding
	}
	switch account.Role {
	case model.RolePatient:
		return DestinationDoctorDirectory
	case model.RoleDoctor:
		if status == model.VerificationVerified {
			return DestinationDoctorDashboard
		}
		return DestinationVerificationStatus
	case model.RoleAdmin:
		return DestinationAdminConsole
	}
	return DestinationOnboarding
}

// Route is the JSON body served to the presentation layer.
type Route struct {
	Destination        Destination              `json:"destination"`
	Role               model.Role               `json:"role,omitempty"`
	VerificationStatus model.VerificationStatus `json:"verification_status,omitempty"`
}

// Resolver loads the caller's account and profile and applies RouteFor.
type Resolver struct {
	accounts repository.AccountRepository
	doctors  repository.DoctorRepository
}

func NewResolver(accounts repository.AccountRepository, doctors repository.DoctorRepository) *Resolver {
	return &Resolver{accounts: accounts, doctors: doctors}
}

// Resolve treats an unknown account as one that has not finished sign-up.
func (r *Resolver) Resolve(ctx context.Context, accountID uuid.UUID) (*Route, error) {
	account, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		appErr := service.StorageError(err, "account")
		if apperrors.Is(appErr, apperrors.ErrNotFound) {
			return &Route{Destination: RouteFor(nil, "")}, nil
		}
		return nil, appErr
	}

	var status model.VerificationStatus
	if account.Role == model.RoleDoctor {
		profile, err := r.doctors.Get(ctx, account.ID)
		switch {
		case err == nil:
			status = profile.VerificationStatus
		case apperrors.Is(service.StorageError(err, "doctor"), apperrors.ErrNotFound):
		default:
			return nil, service.StorageError(err, "doctor")
		}
	}

	return &Route{
		Destination:        RouteFor(account, status),
		Role:               account.Role,
		VerificationStatus: status,
	}, nil
}
