package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/possync/internal/errors"
)

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.NewError("validation_test", "boom"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, validation.Validate("hello", NotBlank))
	assert.Error(t, validation.Validate("   ", NotBlank))
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, validation.Validate("hello", NoWhitespace))
	assert.Error(t, validation.Validate(" hello ", NoWhitespace))
}

func TestJSONDocument(t *testing.T) {
	assert.NoError(t, validation.Validate(`{"total":1999}`, JSONDocument))
	assert.NoError(t, validation.Validate("", JSONDocument))
	assert.Error(t, validation.Validate(`{"total":`, JSONDocument))
}
