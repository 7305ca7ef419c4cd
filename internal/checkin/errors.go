package checkin

import "errors"

// Token decoding failures (ErrMalformedToken, ErrInvalidSignature) come from
// the token package and pass through CheckIn unchanged. Everything here is
// terminal for the current call; only ErrStorage is worth retrying.
var (
	ErrMissingFields        = errors.New("missing fields")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionNotActive     = errors.New("session not active")
	ErrTokenSessionMismatch = errors.New("token session mismatch")
	ErrTokenExpired         = errors.New("token expired")
	ErrStudentNotFound      = errors.New("student not found")
	ErrAlreadyCheckedIn     = errors.New("already checked in")
	ErrStudentExists        = errors.New("student exists")
	ErrStorage              = errors.New("storage error")
)
