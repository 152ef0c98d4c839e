package fetch

import (
	"errors"
	"fmt"
)

// Retry sentinels. The orchestrator never retries on its own; it signals the
// caller, and the caller's retry policy decides timing and attempt budgets.
var (
	// ErrRetryServer means the primary endpoint failed with a server error
	// and no fallback tier produced usable rows. Transient; retry.
	ErrRetryServer = errors.New("fetch: retry after server error")

	// ErrRetryRateLimited means the backend throttled the call. Fallback is
	// pointless (same backend) so the signal fires immediately. Retry after
	// backoff.
	ErrRetryRateLimited = errors.New("fetch: retry after rate limit")
)

// UnavailableError is the terminal error for a missing remote function that
// no fallback tier could cover. Not transient; surface to the user.
type UnavailableError struct {
	Family string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("fetch: %s endpoint unavailable", e.Family)
}

// IsRetryable reports whether err is one of the retry sentinels.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryServer) || errors.Is(err, ErrRetryRateLimited)
}
