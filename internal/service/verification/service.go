package verification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service"
	"github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/pkg/clock"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/metrics"
)

const directoryKeyPrefix = "verified:"

type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Service runs the admin review of doctor accounts: PENDING moves once to
// VERIFIED or REJECTED and never changes again.
type Service struct {
	doctors   repository.DoctorRepository
	directory *cache.Cache
	events    event.Recorder
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	doctors repository.DoctorRepository,
	events event.Recorder,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cacheCfg CacheConfig,
) *Service {
	return &Service{
		doctors:   doctors,
		directory: cache.New(cacheCfg.TTL, cacheCfg.CleanupInterval),
		events:    events,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
	}
}

// ListPending returns the review queue, oldest signup first.
func (s *Service) ListPending(ctx context.Context) ([]*model.DoctorProfile, error) {
	doctors, err := s.doctors.ListByStatus(ctx, model.VerificationPending, "")
	if err != nil {
		return nil, service.StorageError(err, "doctor")
	}
	return doctors, nil
}

// ListVerified backs the admin dashboard and always reads storage, so an
// approval made on any instance shows up immediately.
func (s *Service) ListVerified(ctx context.Context) ([]*model.DoctorProfile, error) {
	doctors, err := s.doctors.ListByStatus(ctx, model.VerificationVerified, "")
	if err != nil {
		return nil, service.StorageError(err, "doctor")
	}
	return doctors, nil
}

// ListVerifiedBySpecialty serves the public directory. An empty specialty
// lists every verified doctor. Results are cached per instance; Approve
// clears only the local copy, so other instances may lag by up to the
// cache TTL.
func (s *Service) ListVerifiedBySpecialty(ctx context.Context, specialty string) ([]*model.DoctorProfile, error) {
	specialty = strings.TrimSpace(specialty)
	key := directoryKeyPrefix + strings.ToLower(specialty)

	if cached, ok := s.directory.Get(key); ok {
		s.metrics.DirectoryLookup.WithLabelValues("hit").Inc()
		return append([]*model.DoctorProfile(nil), cached.([]*model.DoctorProfile)...), nil
	}
	s.metrics.DirectoryLookup.WithLabelValues("miss").Inc()

	doctors, err := s.doctors.ListByStatus(ctx, model.VerificationVerified, specialty)
	if err != nil {
		return nil, service.StorageError(err, "doctor")
	}
	s.directory.SetDefault(key, doctors)
	return append([]*model.DoctorProfile(nil), doctors...), nil
}

func (s *Service) Approve(ctx context.Context, doctorID uuid.UUID, actor model.Actor) (*model.DoctorProfile, error) {
	doctor, err := s.transition(ctx, doctorID, actor, model.VerificationVerified)
	s.metrics.ObserveTransition("approve_doctor", err)
	if err != nil {
		return nil, err
	}

	// VERIFIED is the only status the directory shows.
	s.directory.Flush()
	s.events.Record(ctx, event.DoctorApproved, event.NewDoctorPayload(doctor, actor, doctor.UpdatedAt))
	return doctor, nil
}

func (s *Service) Reject(ctx context.Context, doctorID uuid.UUID, actor model.Actor) (*model.DoctorProfile, error) {
	doctor, err := s.transition(ctx, doctorID, actor, model.VerificationRejected)
	s.metrics.ObserveTransition("reject_doctor", err)
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, event.DoctorRejected, event.NewDoctorPayload(doctor, actor, doctor.UpdatedAt))
	return doctor, nil
}

func (s *Service) transition(ctx context.Context, doctorID uuid.UUID, actor model.Actor, to model.VerificationStatus) (*model.DoctorProfile, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only administrators can review doctors")
	}

	now := s.clock.Now()
	doctor, err := s.doctors.TransitionStatus(ctx, doctorID, model.VerificationPending, to, now)
	if err != nil {
		appErr := service.StorageError(err, "doctor")
		if apperrors.Is(appErr, apperrors.ErrInvalidState) {
			return nil, apperrors.InvalidState("doctor is not pending review")
		}
		return nil, appErr
	}

	s.logger.Info("Doctor verification updated",
		"doctor_id", doctor.ID.String(),
		"status", string(doctor.VerificationStatus),
		"actor_id", actor.ID.String())
	return doctor, nil
}
