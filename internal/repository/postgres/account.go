package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
)

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

const accountColumns = `id, email, name, role, password_hash, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *model.Account, profile *model.DoctorProfile) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			account.ID,
			account.Email,
			account.Name,
			account.Role,
			account.PasswordHash,
			account.CreatedAt,
			account.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if profile == nil {
			return nil
		}

		profile.ID = account.ID
		profile.Name = account.Name
		profile.Email = account.Email
		_, err = tx.ExecContext(ctx, `
			INSERT INTO doctors (
				id, specialty, experience_years, credential_url, description,
				verification_status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			profile.ID,
			profile.Specialty,
			profile.ExperienceYears,
			profile.CredentialURL,
			profile.Description,
			profile.VerificationStatus,
			profile.CreatedAt,
			profile.UpdatedAt,
		)
		return err
	})
	return classify(err, "create account")
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, classify(err, "get account")
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, classify(err, fmt.Sprintf("get account by email %q", email))
	}
	return &account, nil
}
