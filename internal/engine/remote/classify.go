package remote

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"comment-insights/internal/common/errors"
)

// ClassifyStatus maps an HTTP status from the AI service onto the failure
// taxonomy. Unknown 4xx codes are treated as fatal: the same request will
// be rejected again.
func ClassifyStatus(status int, cause error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.NewRateLimitedError(cause)
	case status == http.StatusRequestTimeout:
		return errors.NewTransientRemoteError(status, cause)
	case status >= 500:
		return errors.NewTransientRemoteError(status, cause)
	case status >= 400:
		return errors.NewFatalRemoteError(status, cause)
	default:
		return errors.NewTransientRemoteError(status, cause)
	}
}

// classifyCallError turns a transport failure into a typed error. callCtx is
// the per-call context carrying the timeout, parent the caller's context.
func classifyCallError(err error, parent, callCtx context.Context, timeout time.Duration) error {
	if _, ok := errors.AsStandard(err); ok {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewRemoteTimeoutError(timeout, err)
	}
	// connection refused, reset, DNS
	return errors.NewTransientRemoteError(0, err)
}
