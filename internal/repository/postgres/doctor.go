package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

const doctorSelect = `
	SELECT d.id, a.name, a.email, d.specialty, d.experience_years,
		   d.credential_url, d.description, d.verification_status,
		   d.created_at, d.updated_at
	FROM doctors d
	JOIN accounts a ON a.id = d.id`

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	var doctor model.DoctorProfile
	if err := r.db.GetContext(ctx, &doctor, doctorSelect+` WHERE d.id = $1`, id); err != nil {
		return nil, classify(err, "get doctor")
	}
	return &doctor, nil
}

func (r *doctorRepository) ListByStatus(ctx context.Context, status model.VerificationStatus, specialty string) ([]*model.DoctorProfile, error) {
	query := doctorSelect + `
		WHERE d.verification_status = $1
		AND ($2 = '' OR lower(d.specialty) = lower($2))
		ORDER BY d.created_at ASC, d.id ASC`

	doctors := []*model.DoctorProfile{}
	if err := r.db.SelectContext(ctx, &doctors, query, status, specialty); err != nil {
		return nil, classify(err, "list doctors")
	}
	return doctors, nil
}

// TransitionStatus moves a profile from one status to another only if it is
// still in from.
func (r *doctorRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.VerificationStatus, at time.Time) (*model.DoctorProfile, error) {
	query := `
		WITH updated AS (
			UPDATE doctors
			SET verification_status = $3, updated_at = $4
			WHERE id = $1 AND verification_status = $2
			RETURNING *
		)
		SELECT u.id, a.name, a.email, u.specialty, u.experience_years,
			   u.credential_url, u.description, u.verification_status,
			   u.created_at, u.updated_at
		FROM updated u
		JOIN accounts a ON a.id = u.id`

	var doctor model.DoctorProfile
	err := r.db.GetContext(ctx, &doctor, query, id, from, to, at)
	if err != nil {
		err = classify(err, "transition doctor")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, r.missingOrStale(ctx, "doctors", id, "transition doctor")
		}
		return nil, err
	}
	return &doctor, nil
}
