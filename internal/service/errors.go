// Package service holds helpers shared by the domain services.
package service

import (
	"errors"
	"fmt"

	"github.com/medimeet/appointment-api/internal/repository"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

// StorageError converts a repository failure into the AppError callers see.
// Errors that already are AppErrors, such as transient ones, pass through.
func StorageError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrPreconditionFailed):
		return apperrors.InvalidState(fmt.Sprintf("%s was modified by another request", resource))
	case errors.Is(err, repository.ErrOverlap):
		return apperrors.SlotConflict(err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict(fmt.Sprintf("%s already exists", resource), err)
	}
	return apperrors.Internal(err)
}
