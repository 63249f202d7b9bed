package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := ValidationError("query must not be empty", nil)
	assert.Equal(t, "[validation] query must not be empty", err.Error())

	cause := errors.New("connection refused")
	err = DependencyError("embedding provider", cause)
	assert.Equal(t, "[dependency] embedding provider: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsType_Wrapped(t *testing.T) {
	err := fmt.Errorf("search: %w", NotFoundError("product 42", nil))

	assert.True(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(err, ErrorTypeFatal))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeValidation))
}
