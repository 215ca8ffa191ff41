package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service"
	"github.com/medimeet/appointment-api/pkg/auth"
	"github.com/medimeet/appointment-api/pkg/clock"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	accounts repository.AccountRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	clock    clock.Clock
	logger   *logger.Logger
}

func NewService(accounts repository.AccountRepository, jwtSvc auth.JWTService,
	hasher security.PasswordHasher, clk clock.Clock, logger *logger.Logger) *Service {
	return &Service{
		accounts: accounts,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		clock:    clk,
		logger:   logger,
	}
}

// Register creates a patient or doctor account. A doctor starts with a
// PENDING profile written in the same repository call as the account.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Account, error) {
	var profile *model.DoctorProfile
	switch req.Role {
	case model.RolePatient:
	case model.RoleDoctor:
		if strings.TrimSpace(req.Specialty) == "" {
			return nil, apperrors.BadRequest("specialty is required for doctors", nil)
		}
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("cannot register with role %q", req.Role), nil)
	}

	account, err := s.newAccount(req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		return nil, err
	}
	if req.Role == model.RoleDoctor {
		profile = &model.DoctorProfile{
			Specialty:          strings.ToLower(strings.TrimSpace(req.Specialty)),
			ExperienceYears:    req.ExperienceYears,
			CredentialURL:      req.CredentialURL,
			Description:        req.Description,
			VerificationStatus: model.VerificationPending,
			CreatedAt:          account.CreatedAt,
			UpdatedAt:          account.CreatedAt,
		}
	}

	if err := s.accounts.Create(ctx, account, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email already registered", err)
		}
		return nil, service.StorageError(err, "account")
	}

	s.logger.Info("Account registered", "account_id", account.ID.String(), "role", string(account.Role))
	return account, nil
}

// Login exchanges credentials for an access token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, service.StorageError(err, "account")
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrMismatch) {
			s.logger.Error(err, "Stored password hash is unusable", "account_id", account.ID.String())
		}
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(account)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Account:     account,
	}, nil
}

// EnsureAdmin creates the bootstrap administrator unless an account with
// that email already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (*model.Account, error) {
	existing, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	switch {
	case err == nil:
		if existing.Role != model.RoleAdmin {
			return nil, apperrors.Conflict(fmt.Sprintf("%s is registered with role %s", existing.Email, existing.Role), nil)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, service.StorageError(err, "account")
	}

	account, err := s.newAccount(email, name, password, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account, nil); err != nil {
		return nil, service.StorageError(err, "account")
	}

	s.logger.Info("Administrator account created", "account_id", account.ID.String())
	return account, nil
}

func (s *Service) newAccount(email, name, password string, role model.Role) (*model.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, security.ErrHashingFailed) {
			return nil, apperrors.Internal(err)
		}
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	now := s.clock.Now()
	return &model.Account{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hash,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
