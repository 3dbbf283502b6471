package txn

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/stationhost/internal/abilitycode"
)

// Code is the outcome of a request. Rejection codes use the E_* wire form.
type Code string

const (
	Committed          Code = "committed"
	Unauthorized       Code = "E_UNAUTHORIZED"
	PreconditionFailed Code = "E_PRECONDITION"
	AlreadyInProgress  Code = "E_IN_PROGRESS"
	DecodeFailed       Code = "E_DECODE"
	EncodeOverflow     Code = "E_ENCODE_OVERFLOW"
	CapacityExceeded   Code = "E_CAPACITY"
)

var knownCodes = map[Code]struct{}{
	Committed:          {},
	Unauthorized:       {},
	PreconditionFailed: {},
	AlreadyInProgress:  {},
	DecodeFailed:       {},
	EncodeOverflow:     {},
	CapacityExceeded:   {},
}

// Known reports whether c is one of the defined codes.
func (c Code) Known() bool {
	_, ok := knownCodes[c]
	return ok
}

// ErrMissingCategory is wrapped by combine rejections that lack a reagent
// category.
var ErrMissingCategory = errors.New("txn: missing reagent category")

// Rejection is a typed refusal to commit. Nothing has been applied when a
// Rejection is returned.
type Rejection struct {
	Code   Code
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Code, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Reject builds a Rejection.
func Reject(code Code, reason string) *Rejection {
	return &Rejection{Code: code, Reason: reason}
}

// Rejectf builds a Rejection with a formatted reason.
func Rejectf(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to err unless err already carries a Rejection.
func Wrap(code Code, reason string, err error) error {
	if err == nil {
		return nil
	}
	var r *Rejection
	if errors.As(err, &r) {
		return err
	}
	return &Rejection{Code: code, Reason: reason, Err: err}
}

// CodeOf maps any error to a Code. Unrecognised errors are precondition
// failures.
func CodeOf(err error) Code {
	if err == nil {
		return Committed
	}
	var r *Rejection
	if errors.As(err, &r) && r.Code.Known() {
		return r.Code
	}
	var de *abilitycode.DecodeError
	switch {
	case errors.As(err, &de):
		return DecodeFailed
	case errors.Is(err, abilitycode.ErrEncodeOverflow), errors.Is(err, abilitycode.ErrUnlockLimit):
		return EncodeOverflow
	}
	return PreconditionFailed
}

// ReasonOf returns a short human-readable reason for err.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var r *Rejection
	if errors.As(err, &r) {
		if r.Reason != "" {
			return r.Reason
		}
	}
	return err.Error()
}
