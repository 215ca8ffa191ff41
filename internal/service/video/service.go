// Package video issues join credentials for an appointment's video call.
package video

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service"
	"github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/pkg/clock"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/metrics"
	"github.com/medimeet/appointment-api/pkg/video"
)

const DefaultJoinLead = 30 * time.Minute

type Config struct {
	// JoinLead is how long before StartTime the window opens.
	JoinLead time.Duration
}

// TokenMinter issues a caller-scoped credential for a room.
type TokenMinter interface {
	Mint(identity, room string, now time.Time) (*video.Token, error)
}

type Service struct {
	appointments repository.AppointmentRepository
	minter       TokenMinter
	events       event.Recorder
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics
	joinLead     time.Duration

	newSessionID func() string
}

func NewService(
	appointments repository.AppointmentRepository,
	minter TokenMinter,
	events event.Recorder,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.JoinLead == 0 {
		cfg.JoinLead = DefaultJoinLead
	}
	return &Service{
		appointments: appointments,
		minter:       minter,
		events:       events,
		clock:        clk,
		logger:       logger,
		metrics:      metrics,
		joinLead:     cfg.JoinLead,
		newSessionID: video.NewSessionID,
	}
}

// RequestJoin returns a fresh credential for the appointment's video
// session, opening the session on the first call. The window is
// [StartTime-JoinLead, EndTime], both ends inclusive.
func (s *Service) RequestJoin(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.VideoJoin, error) {
	join, err := s.requestJoin(ctx, id, actor)
	s.metrics.ObserveTransition("video_join", err)
	return join, err
}

func (s *Service) requestJoin(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.VideoJoin, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, service.StorageError(err, "appointment")
	}
	// administrators can cancel but never join
	if !apt.IsParticipant(actor.ID) {
		return nil, apperrors.Forbidden("only participants can join the video session")
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.InvalidState(fmt.Sprintf("appointment is %s", apt.Status))
	}

	now := s.clock.Now()
	if now.Before(apt.StartTime.Add(-s.joinLead)) {
		return nil, apperrors.TooEarly(fmt.Sprintf("video session opens %s before the start time", s.joinLead))
	}
	if now.After(apt.EndTime) {
		return nil, apperrors.WindowClosed("video session window has closed")
	}

	sessionID, err := s.session(ctx, apt, actor, now)
	if err != nil {
		return nil, err
	}

	token, err := s.minter.Mint(actor.ID.String(), sessionID, now)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.VideoJoin{
		AppointmentID: apt.ID,
		SessionID:     sessionID,
		Token:         token.Value,
		ExpiresAt:     token.ExpiresAt,
	}, nil
}

// session returns the stored session id, assigning a new one if the
// appointment has none. Concurrent first joins converge on whichever id the
// conditional write stored first.
func (s *Service) session(ctx context.Context, apt *model.Appointment, actor model.Actor, now time.Time) (string, error) {
	if apt.VideoSessionID != nil {
		return *apt.VideoSessionID, nil
	}

	candidate := s.newSessionID()
	stored, err := s.appointments.AssignVideoSession(ctx, apt.ID, candidate, now)
	if err != nil {
		appErr := service.StorageError(err, "appointment")
		if apperrors.Is(appErr, apperrors.ErrInvalidState) {
			return "", apperrors.InvalidState("appointment is no longer scheduled")
		}
		return "", appErr
	}

	if stored == candidate {
		s.logger.Info("Video session opened",
			"appointment_id", apt.ID.String(),
			"session_id", stored)
		opened := apt.Clone()
		opened.VideoSessionID = &stored
		opened.UpdatedAt = now
		s.events.Record(ctx, event.AppointmentVideoSessionOpened, event.NewAppointmentPayload(opened, actor, now))
	}
	return stored, nil
}
