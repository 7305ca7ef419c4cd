package checkin

import (
	"context"
	"time"

	"presage/attendance/internal/model"
)

// Store is the persistence boundary of the verification core: single-row
// lookups and inserts with strong consistency. Implementations return the
// package sentinels for domain conditions (not found, duplicates) and raw
// errors for infrastructure failures, which the service wraps as ErrStorage.
//
// CreateAttendanceRecord must enforce at most one record per
// (session_id, roll_no) pair itself and report a violation as
// ErrAlreadyCheckedIn; the service's pre-insert existence check is only a
// fast path.
type Store interface {
	CreateSession(ctx context.Context, session model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	DeactivateSession(ctx context.Context, id string) error
	DeactivateSessionsBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	GetStudent(ctx context.Context, rollNo string) (model.Student, error)
	CreateStudent(ctx context.Context, student model.Student) error

	HasAttendanceRecord(ctx context.Context, sessionID, rollNo string) (bool, error)
	CreateAttendanceRecord(ctx context.Context, record model.AttendanceRecord) error
	ListAttendanceBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
}
