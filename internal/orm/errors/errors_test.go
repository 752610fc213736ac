package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		code ErrorCode
	}{
		{KindDefinition, CodeDefinition},
		{KindResourceNotFound, CodeResourceNotFound},
		{KindFieldAccess, CodeFieldAccess},
		{KindValidation, CodeValidation},
		{KindConcurrency, CodeConcurrency},
		{KindSecurity, CodeAccessDenied},
		{KindArgument, CodeArgument},
		{KindArgumentOutOfRange, CodeArgument},
		{KindData, CodeDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.kind.Code())
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("write failed: %w", Concurrency("test.node", 4))

	assert.True(t, stderrors.Is(err, ErrConcurrency))
	assert.False(t, stderrors.Is(err, ErrValidation))
	assert.Equal(t, CodeConcurrency, CodeOf(err))
}

func TestArgumentOutOfRangeMatchesArgument(t *testing.T) {
	err := ArgumentOutOfRange("test.node", "unknown field %q", "colour")

	assert.True(t, stderrors.Is(err, ErrArgumentOutOfRange))
	assert.True(t, stderrors.Is(err, ErrArgument))
	assert.False(t, stderrors.Is(ErrArgument, ErrArgumentOutOfRange))
}

func TestValidationMessage(t *testing.T) {
	err := Validation("test.node", map[string]string{
		"name":  "required",
		"email": "readonly",
	})

	assert.Equal(t, "validation [test.node]: record rejected (email: readonly; name: required)", err.Error())
	assert.Equal(t, CodeValidation, err.Code)
}

func TestUnrecognizedErrors(t *testing.T) {
	plain := stderrors.New("boom")

	assert.False(t, IsRecognized(plain))
	assert.Equal(t, CodeInternal, CodeOf(plain))

	_, ok := KindOf(plain)
	assert.False(t, ok)
}

func TestDataUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Data("core.user", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, ErrData))
	assert.Contains(t, err.Error(), "connection reset")
}
