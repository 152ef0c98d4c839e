package classify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetops/kpi-cli/pkg/edge"
)

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  *edge.APIError
		want Kind
	}{
		{
			"postgres undefined function",
			&edge.APIError{Status: 404, Code: "42883", Message: "function public.utr_summary(jsonb) does not exist"},
			KindFunctionMissing,
		},
		{
			"schema cache miss",
			&edge.APIError{Status: 404, Code: "PGRST202", Message: "Could not find the function public.courier_summary"},
			KindFunctionMissing,
		},
		{
			"function not exposed",
			&edge.APIError{Status: 404, Code: "PGRST302", Message: "anonymous access blocked"},
			KindFunctionMissing,
		},
		{
			"sanitized bare 404",
			&edge.APIError{Status: 404, Message: "Not Found"},
			KindFunctionMissing,
		},
		{
			"sanitized generic bad request",
			&edge.APIError{Status: 400, Message: "Bad Request"},
			KindFunctionMissing,
		},
		{
			"bad request with code stays other",
			&edge.APIError{Status: 400, Code: "22P02", Message: "invalid input syntax"},
			KindOther,
		},
		{
			"internal server error",
			&edge.APIError{Status: 500, Message: "Internal Server Error"},
			KindServerError,
		},
		{
			"bad gateway",
			&edge.APIError{Status: 502, Message: "upstream connect error"},
			KindServerError,
		},
		{
			"numeric 5xx code with masked status",
			&edge.APIError{Status: 400, Code: "503", Message: "upstream unavailable"},
			KindServerError,
		},
		{
			"throttled by status",
			&edge.APIError{Status: 429, Message: "slow down"},
			KindRateLimited,
		},
		{
			"throttled by message",
			&edge.APIError{Status: 400, Message: "Too many requests from this key"},
			KindRateLimited,
		},
		{
			"forbidden",
			&edge.APIError{Status: 403, Message: "permission denied for function"},
			KindOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyWrappedError(t *testing.T) {
	apiErr := &edge.APIError{Status: 404, Code: "PGRST202", Message: "could not find the function"}
	wrapped := fmt.Errorf("call utr_summary: %w", apiErr)
	assert.Equal(t, KindFunctionMissing, Classify(wrapped))
}

func TestClassifyPlainError(t *testing.T) {
	assert.Equal(t, KindOther, Classify(nil))
	assert.Equal(t, KindOther, Classify(errors.New("connection refused")))
	assert.Equal(t, KindFunctionMissing, Classify(errors.New("relation does not exist")))
	assert.Equal(t, KindServerError, Classify(errors.New("503 Service Unavailable")))
	assert.Equal(t, KindRateLimited, Classify(errors.New("rate limit exceeded, retry later")))
}
