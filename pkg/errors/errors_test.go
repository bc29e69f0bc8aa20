package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New(ErrorTypeRateLimit, "HTTP 429 too many requests", "Wait 5-15 minutes before retrying")
	assert.Equal(t, "HTTP 429 too many requests [Hint: Wait 5-15 minutes before retrying]", err.Error())

	bare := New(ErrorTypeUnknown, "boom", "")
	assert.Equal(t, "boom", bare.Error())
}

func TestClassPredicates(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
		terminal  bool
		authClass bool
	}{
		{ErrorTypeNetwork, true, false, false},
		{ErrorTypeRateLimit, true, false, false},
		{ErrorTypeAuth, false, true, true},
		{ErrorTypeNotFound, false, true, false},
		{ErrorTypeProtected, false, true, false},
		{ErrorTypeEmpty, false, false, false},
		{ErrorTypeParsing, false, false, false},
		{ErrorTypeLocalIO, false, false, false},
		{ErrorTypeUnknown, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.errType))
			assert.Equal(t, tt.terminal, IsTerminal(tt.errType))
			assert.Equal(t, tt.authClass, IsAuthClass(tt.errType))
		})
	}
}
