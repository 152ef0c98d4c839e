// Package classify labels failed backend calls so the orchestrator can pick
// a fallback strategy. Classification is pure and total: every error maps to
// exactly one Kind.
package classify

import (
	"errors"
	"strconv"
	"strings"

	"github.com/fleetops/kpi-cli/pkg/edge"
)

// Kind is the failure classification of a remote call.
type Kind string

const (
	// KindFunctionMissing means the remote aggregation function does not
	// exist on the backend. Not transient; the fallback tiers are the only
	// way to answer the request.
	KindFunctionMissing Kind = "function-missing"

	// KindServerError means a 5xx-class backend failure.
	KindServerError Kind = "server-error"

	// KindRateLimited means the backend throttled the call.
	KindRateLimited Kind = "rate-limited"

	// KindOther is anything else.
	KindOther Kind = "other"
)

// Postgres/PostgREST codes that signal an undefined remote function.
var missingFunctionCodes = map[string]bool{
	"42883":    true, // undefined_function
	"PGRST202": true, // function not found in schema cache
	"PGRST302": true, // function not exposed
}

var missingFunctionMarkers = []string{
	"does not exist",
	"not found",
	"could not find the function",
}

var rateLimitMarkers = []string{
	"rate limit",
	"too many requests",
	"throttl",
}

// Classify inspects a failed call's code, message, and HTTP status and
// returns one of the four kinds. A nil error classifies as KindOther.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var apiErr *edge.APIError
	if errors.As(err, &apiErr) {
		return classifyAPI(apiErr)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rateLimitMarkers):
		return KindRateLimited
	case containsAny(msg, missingFunctionMarkers):
		return KindFunctionMissing
	case strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "bad gateway"):
		return KindServerError
	}
	return KindOther
}

func classifyAPI(apiErr *edge.APIError) Kind {
	msg := strings.ToLower(apiErr.Message)

	if apiErr.Status == 429 || apiErr.Code == "429" || containsAny(msg, rateLimitMarkers) {
		return KindRateLimited
	}

	if missingFunctionCodes[apiErr.Code] || containsAny(msg, missingFunctionMarkers) {
		return KindFunctionMissing
	}
	// Some gateways sanitize an unknown-function call down to a bare 404 or
	// a generic "Bad Request" with no code attached.
	if apiErr.Code == "" && (apiErr.Status == 404 ||
		(apiErr.Status == 400 && msg == "bad request")) {
		return KindFunctionMissing
	}

	if apiErr.Status >= 500 && apiErr.Status <= 599 {
		return KindServerError
	}
	if n, err := strconv.Atoi(apiErr.Code); err == nil && n >= 500 && n <= 599 {
		return KindServerError
	}

	return KindOther
}

func containsAny(msg string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
