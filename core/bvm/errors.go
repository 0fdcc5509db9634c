// Copyright 2024 by the Authors
// This file is part of the bvm2 library.
//
// The bvm2 library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The bvm2 library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the bvm2 library. If not, see <http://www.gnu.org/licenses/>.

package bvm

import "fmt"

// Kind classifies every fatal failure an invocation can raise into one of
// the rows of the error table (every kind is fatal to the current top-level
// invocation; there is no in-contract recovery).
type Kind int

const (
	KindMalformedModule Kind = iota
	KindLinkError
	KindBoundsViolation
	KindChargeExceeded
	KindHalt
	KindInvariantViolation
	KindBlockNotReady
	KindSignatureInvalid
	KindFarCallTooDeep
)

func (k Kind) String() string {
	switch k {
	case KindMalformedModule:
		return "MalformedModule"
	case KindLinkError:
		return "LinkError"
	case KindBoundsViolation:
		return "BoundsViolation"
	case KindChargeExceeded:
		return "ChargeExceeded"
	case KindHalt:
		return "Halt"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindBlockNotReady:
		return "BlockNotReady"
	case KindSignatureInvalid:
		return "SignatureInvalid"
	case KindFarCallTooDeep:
		return "FarCallTooDeep"
	default:
		return "Unknown"
	}
}

// Error is the uniform fatal-failure type raised by any BVM2 component.
// Every Error rolls the active invocation's undo log back to its
// pre-invocation checkpoint; see undo.go.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewError constructs a fatal Error of the given kind.
func NewError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel convenience errors for the common cases, one per Kind.
var (
	ErrMalformedModule    = NewError(KindMalformedModule, "malformed module")
	ErrLinkError          = NewError(KindLinkError, "link error")
	ErrBoundsViolation    = NewError(KindBoundsViolation, "bounds violation")
	ErrChargeExceeded     = NewError(KindChargeExceeded, "charge exceeded")
	ErrHalt               = NewError(KindHalt, "contract halted")
	ErrInvariantViolation = NewError(KindInvariantViolation, "invariant violation")
	ErrBlockNotReady      = NewError(KindBlockNotReady, "block not ready")
	ErrSignatureInvalid   = NewError(KindSignatureInvalid, "signature invalid")
	ErrFarCallTooDeep     = NewError(KindFarCallTooDeep, "far-call stack too deep")
)

// IsFatal reports whether err is a BVM2 Error (every BVM2 error is fatal;
// this exists purely so callers can distinguish "the VM raised a fatal
// condition" from an unrelated Go error bubbling through the Store).
func IsFatal(err error) bool {
	_, ok := err.(*Error)
	return ok
}
