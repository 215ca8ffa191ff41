// Package memory is a process-local implementation of the repository
// interfaces. Every check-then-write runs under one mutex, which gives it the
// same conditional-write guarantees as the postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*model.Account
	emails       map[string]uuid.UUID
	doctors      map[uuid.UUID]*model.DoctorProfile
	appointments map[uuid.UUID]*model.Appointment
	outbox       map[uuid.UUID]*model.OutboxEvent
}

func New() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*model.Account),
		emails:       make(map[string]uuid.UUID),
		doctors:      make(map[uuid.UUID]*model.DoctorProfile),
		appointments: make(map[uuid.UUID]*model.Appointment),
		outbox:       make(map[uuid.UUID]*model.OutboxEvent),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Accounts:     &accountRepository{s},
		Doctors:      &doctorRepository{s},
		Appointments: &appointmentRepository{s},
		Outbox:       &outboxRepository{s},
		Ping:         checkContext,
	}
}

// checkContext mirrors a database call that never started because the
// caller gave up.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Transient(err)
	}
	return nil
}

type accountRepository struct{ s *Store }

func (r *accountRepository) Create(ctx context.Context, account *model.Account, profile *model.DoctorProfile) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, ok := r.s.emails[email]; ok {
		return fmt.Errorf("create account: %w", repository.ErrDuplicate)
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if _, ok := r.s.accounts[account.ID]; ok {
		return fmt.Errorf("create account: %w", repository.ErrDuplicate)
	}

	stored := *account
	r.s.accounts[account.ID] = &stored
	r.s.emails[email] = account.ID

	if profile != nil {
		profile.ID = account.ID
		profile.Name = account.Name
		profile.Email = account.Email
		p := *profile
		r.s.doctors[account.ID] = &p
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("get account: %w", repository.ErrNotFound)
	}
	cp := *account
	return &cp, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	id, ok := r.s.emails[strings.ToLower(email)]
	r.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get account by email: %w", repository.ErrNotFound)
	}
	return r.Get(ctx, id)
}

type doctorRepository struct{ s *Store }

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	doctor, ok := r.s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("get doctor: %w", repository.ErrNotFound)
	}
	cp := *doctor
	return &cp, nil
}

func (r *doctorRepository) ListByStatus(ctx context.Context, status model.VerificationStatus, specialty string) ([]*model.DoctorProfile, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	doctors := []*model.DoctorProfile{}
	for _, d := range r.s.doctors {
		if d.VerificationStatus != status {
			continue
		}
		if specialty != "" && !strings.EqualFold(d.Specialty, specialty) {
			continue
		}
		cp := *d
		doctors = append(doctors, &cp)
	}
	sort.Slice(doctors, func(i, j int) bool {
		if doctors[i].CreatedAt.Equal(doctors[j].CreatedAt) {
			return doctors[i].ID.String() < doctors[j].ID.String()
		}
		return doctors[i].CreatedAt.Before(doctors[j].CreatedAt)
	})
	return doctors, nil
}

func (r *doctorRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.VerificationStatus, at time.Time) (*model.DoctorProfile, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	doctor, ok := r.s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("transition doctor: %w", repository.ErrNotFound)
	}
	if doctor.VerificationStatus != from {
		return nil, fmt.Errorf("transition doctor: %w", repository.ErrPreconditionFailed)
	}
	doctor.VerificationStatus = to
	doctor.UpdatedAt = at
	cp := *doctor
	return &cp, nil
}

type appointmentRepository struct{ s *Store }

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if appointment.Status == model.AppointmentStatusScheduled {
		for _, existing := range r.s.appointments {
			if existing.DoctorID != appointment.DoctorID || existing.Status != model.AppointmentStatusScheduled {
				continue
			}
			if existing.Overlaps(appointment.StartTime, appointment.EndTime) {
				return fmt.Errorf("create appointment: %w", repository.ErrOverlap)
			}
		}
	}

	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if _, ok := r.s.appointments[appointment.ID]; ok {
		return fmt.Errorf("create appointment: %w", repository.ErrDuplicate)
	}
	r.s.appointments[appointment.ID] = appointment.Clone()
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	appointment, ok := r.s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("get appointment: %w", repository.ErrNotFound)
	}
	return appointment.Clone(), nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	appointments := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
			continue
		}
		if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		appointments = append(appointments, a.Clone())
	}
	sort.Slice(appointments, func(i, j int) bool {
		if appointments[i].StartTime.Equal(appointments[j].StartTime) {
			return appointments[i].ID.String() < appointments[j].ID.String()
		}
		return appointments[i].StartTime.Before(appointments[j].StartTime)
	})
	return appointments, nil
}

// update applies fn to the stored appointment when its status equals from.
func (r *appointmentRepository) update(ctx context.Context, op string, id uuid.UUID, from model.AppointmentStatus, fn func(a *model.Appointment)) (*model.Appointment, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, ok := r.s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if appointment.Status != from {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrPreconditionFailed)
	}
	fn(appointment)
	return appointment.Clone(), nil
}

func (r *appointmentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, at time.Time) (*model.Appointment, error) {
	return r.update(ctx, "transition appointment", id, from, func(a *model.Appointment) {
		a.Status = to
		a.UpdatedAt = at
	})
}

func (r *appointmentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) (*model.Appointment, error) {
	return r.update(ctx, "update appointment notes", id, model.AppointmentStatusScheduled, func(a *model.Appointment) {
		a.Notes = notes
		a.UpdatedAt = at
	})
}

func (r *appointmentRepository) AssignVideoSession(ctx context.Context, id uuid.UUID, sessionID string, at time.Time) (string, error) {
	updated, err := r.update(ctx, "assign video session", id, model.AppointmentStatusScheduled, func(a *model.Appointment) {
		if a.VideoSessionID == nil {
			sid := sessionID
			a.VideoSessionID = &sid
			a.UpdatedAt = at
		}
	})
	if err != nil {
		return "", err
	}
	return *updated.VideoSessionID, nil
}

type outboxRepository struct{ s *Store }

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	cp := *event
	r.s.outbox[event.ID] = &cp
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	events := []*model.OutboxEvent{}
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusPending {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.outbox[id]
	if !ok {
		return fmt.Errorf("update outbox event: %w", repository.ErrNotFound)
	}
	now := time.Now().UTC()
	event.Status = status
	event.ErrorMessage = errMsg
	event.UpdatedAt = now
	switch status {
	case model.OutboxStatusFailed:
		event.RetryCount++
	case model.OutboxStatusProcessed:
		event.ProcessedAt = &now
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}
