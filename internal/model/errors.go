package model

import (
	"errors"
	"fmt"
)

// Failure classes. Every component recovers these at its boundary and turns them
// into a success/failure signal plus a log entry.
var (
	ErrRejectedInput      = errors.New("rejected input")
	ErrLowConfidence      = errors.New("low confidence")
	ErrUnverifiedClaim    = errors.New("unverified claim")
	ErrTransientFetch     = errors.New("transient fetch failure")
	ErrSyntaxRegression   = errors.New("syntax regression")
	ErrQuotaExceeded      = errors.New("modification quota exceeded")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Violation explains why an input or modification was refused
type Violation struct {
	Kind    error // One of the Err* sentinels
	Reason  string
	Details map[string]any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%v: %s", v.Kind, v.Reason)
}

// Unwrap lets errors.Is match the sentinel kind
func (v *Violation) Unwrap() error {
	return v.Kind
}

// Reject builds a rejected-input violation
func Reject(reason string, details map[string]any) *Violation {
	return &Violation{Kind: ErrRejectedInput, Reason: reason, Details: details}
}
