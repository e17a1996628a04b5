package common

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// CredentialError reports that an identity could not be established for the
// scanned account. It is fatal for the whole scan: no partial result is
// meaningful without identity.
type CredentialError struct {
	Account string
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials for account %q: %v", e.Account, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransientError reports that an individual API call kept failing with a
// retryable condition after the bounded retry budget was exhausted.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: still failing after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err carries a *CredentialError anywhere
// in its chain.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// retryableCodes are the AWS API error codes treated as transient.
// Everything else fails immediately.
var retryableCodes = map[string]struct{}{
	"Throttling":                    {},
	"ThrottlingException":           {},
	"TooManyRequestsException":      {},
	"RequestLimitExceeded":          {},
	"RequestThrottled":              {},
	"RequestThrottledException":     {},
	"SlowDown":                      {},
	"ServiceUnavailable":            {},
	"InternalError":                 {},
	"InternalFailure":               {},
	"RequestTimeout":                {},
	"RequestTimeoutException":       {},
	"ProvisionedThroughputExceededException": {},
}

// IsRetryable reports whether err represents a throttling or transient
// service condition worth retrying.
func IsRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := retryableCodes[apiErr.ErrorCode()]
		return ok
	}
	return false
}
