package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeAndMatches(t *testing.T) {
	err := Clone(ErrInvalidRecurrencePattern, "weekly recurrence needs at least one day")
	assert.Equal(t, "INVALID_RECURRENCE_PATTERN", err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidRecurrencePattern))
	assert.False(t, errors.Is(err, ErrValidation))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	plain := fmt.Errorf("boom")
	appErr := FromError(plain)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, plain)

	typed := Clone(ErrNotFound, "assignment not found")
	assert.Same(t, typed, FromError(fmt.Errorf("lookup: %w", typed)))
	assert.Nil(t, FromError(nil))
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(fmt.Errorf("db down"), ErrInternal.Code, ErrInternal.Status, "failed to list")
	assert.Equal(t, "failed to list: db down", err.Error())
	assert.Equal(t, "cache miss", ErrCacheMiss.Error())
}
