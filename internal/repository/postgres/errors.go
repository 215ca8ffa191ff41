package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/medimeet/appointment-api/internal/repository"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

const (
	codeExclusionViolation   pq.ErrorCode  = "23P01"
	codeUniqueViolation      pq.ErrorCode  = "23505"
	codeSerializationFailure pq.ErrorCode  = "40001"
	codeDeadlockDetected     pq.ErrorCode  = "40P01"
	codeQueryCanceled        pq.ErrorCode  = "57014"
	classConnectionException pq.ErrorClass = "08"
)

// classify maps driver errors onto repository sentinels, or onto a transient
// AppError when the call may succeed if repeated.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if isTransient(err) {
		return apperrors.Transient(fmt.Errorf("%s: %w", op, err))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeExclusionViolation:
			return fmt.Errorf("%s: %w (%s)", op, repository.ErrOverlap, pqErr.Constraint)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, repository.ErrDuplicate, pqErr.Constraint)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
			return true
		}
		return pqErr.Code.Class() == classConnectionException
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
