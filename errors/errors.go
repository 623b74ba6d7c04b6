package errors

import "fmt"

var (
	// Registry and coordinator failures. Recovered locally and converted
	// into an error reply to the originating connection only.
	ErrUnknownSession   = fmt.Errorf("unknown session")
	ErrUnknownGroup     = fmt.Errorf("unknown group")
	ErrDuplicateSession = fmt.Errorf("session code already registered")
	ErrGroupTooSmall    = fmt.Errorf("group has fewer than two members")

	// ErrGroupSpaceExhausted means the group id counter wrapped. Ids are
	// never reused, so this is an administrative condition rather than a
	// per-request error.
	ErrGroupSpaceExhausted = fmt.Errorf("group id space exhausted")

	ErrNotRegistered = fmt.Errorf("no worker registered under that name")

	ErrMalformedMessage = fmt.Errorf("malformed message")
	ErrAdapterFailure   = fmt.Errorf("provider call failed")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)
