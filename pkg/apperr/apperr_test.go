package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrNotFound, CodeNotFound},
		{ErrAlreadyProcessed, CodeAlreadyProcessed},
		{ErrValidation, CodeValidation},
		{ErrStoreUnavailable, CodeStoreUnavailable},
		{fmt.Errorf("wrapped: %w", ErrAlreadyProcessed), CodeAlreadyProcessed},
		{errors.New("something else"), CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err))
	}
}

func TestValidationfWrapsSentinel(t *testing.T) {
	err := Validationf("amount %q is malformed", "abc")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), `amount "abc" is malformed`)
}
