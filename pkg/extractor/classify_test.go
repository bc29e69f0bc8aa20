package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "xscraper/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantType errs.ErrorType
		wantHint string
	}{
		{
			name:     "rate limit by phrase",
			output:   "[error] rate limit exceeded, try again later",
			wantType: errs.ErrorTypeRateLimit,
			wantHint: "Wait 5-15 minutes",
		},
		{
			name:     "rate limit by status code",
			output:   "HttpError: '429 Too Many Requests'",
			wantType: errs.ErrorTypeRateLimit,
			wantHint: "Wait 5-15 minutes",
		},
		{
			name:     "end of timeline",
			output:   "[twitter][error] Unable to retrieve Tweets from this timeline",
			wantType: errs.ErrorTypeRateLimit,
			wantHint: "data already fetched has been saved",
		},
		{
			name:     "auth by status code",
			output:   "HttpError: '401 Unauthorized'",
			wantType: errs.ErrorTypeAuth,
			wantHint: "invalid or expired",
		},
		{
			name:     "not found",
			output:   "HttpError: '404 Not Found'",
			wantType: errs.ErrorTypeNotFound,
			wantHint: "@ghost may not exist or is suspended",
		},
		{
			name:     "protected account",
			output:   "AuthorizationError: protected account",
			wantType: errs.ErrorTypeProtected,
			wantHint: "need to follow",
		},
		{
			name:     "network",
			output:   "ConnectionError: connection timed out",
			wantType: errs.ErrorTypeNetwork,
			wantHint: "network connectivity",
		},
		{
			name:     "unknown",
			output:   "something inexplicable happened",
			wantType: errs.ErrorTypeUnknown,
			wantHint: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.output, "ghost")
			require.NotNil(t, err)
			assert.Equal(t, tt.wantType, err.Type)
			if tt.wantHint == "" {
				assert.Empty(t, err.Hint)
			} else {
				assert.Contains(t, err.Hint, tt.wantHint)
			}
		})
	}
}

func TestClassifyKeepsOriginalErrorLine(t *testing.T) {
	output := "[info] fetching timeline\n[twitter][error] HttpError: '429 Too Many Requests'\nmore noise"
	err := Classify(output, "NASA")
	assert.Equal(t, "[twitter][error] HttpError: '429 Too Many Requests'", err.Message)
}

func TestClassifyTruncatesLongDiagnostics(t *testing.T) {
	err := Classify("error: "+strings.Repeat("x", 1000), "NASA")
	assert.LessOrEqual(t, len(err.Message), maxDiagnosticLen+3)
	assert.True(t, strings.HasSuffix(err.Message, "..."))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
	}{
		{"bare object", `{"media":[]}`, `{"media":[]}`},
		{"log prefix", "[info] starting\n{\"media\":[]}\ntrailing", `{"media":[]}`},
		{"nested braces", `noise {"a":{"b":1}} tail`, `{"a":{"b":1}}`},
		{"no json", "just log lines", ""},
		{"unterminated", `{"a":1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.output))
		})
	}
}
