package syncer

import (
	"context"
	"errors"

	"github.com/mmcdole/brewsync/internal/domain"
)

type failure int

const (
	failTransient failure = iota
	failPermanent
	failConflict
	failAuth
	failCanceled
)

// permanentError marks a local failure that no retry can fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// classify maps a send error onto the retry policy. Errors it cannot place
// are treated as transient; the attempt cap bounds them.
func classify(err error) failure {
	var perr permanentError
	if errors.As(err, &perr) {
		return failPermanent
	}
	if errors.Is(err, context.Canceled) {
		return failCanceled
	}
	if errors.Is(err, domain.ErrAuthFailed) {
		return failAuth
	}
	if errors.Is(err, domain.ErrServerOffline) || errors.Is(err, context.DeadlineExceeded) {
		return failTransient
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401:
			return failAuth
		case apiErr.Conflict():
			return failConflict
		case apiErr.Retryable():
			return failTransient
		default:
			return failPermanent
		}
	}
	return failTransient
}

func (f failure) outcome() domain.OpOutcome {
	switch f {
	case failPermanent:
		return domain.OutcomePermanent
	case failConflict:
		return domain.OutcomeConflict
	default:
		return domain.OutcomeRetryable
	}
}
