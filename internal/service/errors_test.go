package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medimeet/appointment-api/internal/repository"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

func TestStorageError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorCode
	}{
		{name: "not found", err: fmt.Errorf("get: %w", repository.ErrNotFound), want: apperrors.ErrNotFound},
		{name: "precondition", err: repository.ErrPreconditionFailed, want: apperrors.ErrInvalidState},
		{name: "overlap", err: repository.ErrOverlap, want: apperrors.ErrSlotConflict},
		{name: "duplicate", err: repository.ErrDuplicate, want: apperrors.ErrConflict},
		{name: "transient passes through", err: apperrors.Transient(errors.New("timeout")), want: apperrors.ErrTransient},
		{name: "unknown", err: errors.New("boom"), want: apperrors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperrors.Is(StorageError(tt.err, "appointment"), tt.want))
		})
	}

	assert.NoError(t, StorageError(nil, "appointment"))
}
