// Package db implements the checkin.Store contract on Postgres. Queries are
// single-row lookups and inserts; the (session_id, roll_no) uniqueness that
// the check-in pipeline relies on is declared in the schema and surfaces
// here as a 23505 unique violation.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"presage/attendance/internal/checkin"
	"presage/attendance/internal/model"
)

const uniqueViolation = "23505"

type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewStore wraps a pool. Every query runs under the given timeout so a stuck
// store call surfaces as a retryable failure instead of hanging the request.
func NewStore(pool *pgxpool.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{pool: pool, timeout: timeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Session ids are UUIDs in the schema. Anything else cannot match a row, and
// letting it reach the query would fail the uuid cast (22P02) instead of
// coming back as no rows.
func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) CreateSession(ctx context.Context, session model.Session) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_sessions (id, teacher_id, class_id, subject_id, secret, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.TeacherID, session.ClassID, session.SubjectID, session.Secret, session.Active, session.CreatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	if !validSessionID(id) {
		return model.Session{}, checkin.ErrSessionNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var session model.Session
	row := s.pool.QueryRow(ctx, `
		SELECT id, teacher_id, class_id, subject_id, secret, active, created_at
		FROM attendance_sessions
		WHERE id = $1
	`, id)
	err := row.Scan(
		&session.ID,
		&session.TeacherID,
		&session.ClassID,
		&session.SubjectID,
		&session.Secret,
		&session.Active,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, checkin.ErrSessionNotFound
	}
	return session, err
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	if !validSessionID(id) {
		return checkin.ErrSessionNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `UPDATE attendance_sessions SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return checkin.ErrSessionNotFound
	}
	return nil
}

func (s *Store) DeactivateSessionsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		UPDATE attendance_sessions SET active = false
		WHERE active = true AND created_at < $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, rollNo string) (model.Student, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT roll_no, name, class_id
		FROM students
		WHERE roll_no = $1
	`, rollNo)
	err := row.Scan(&student.RollNo, &student.Name, &student.ClassID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Student{}, checkin.ErrStudentNotFound
	}
	return student, err
}

func (s *Store) CreateStudent(ctx context.Context, student model.Student) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (roll_no, name, class_id)
		VALUES ($1, $2, $3)
	`, student.RollNo, student.Name, student.ClassID)
	if isUniqueViolation(err) {
		return checkin.ErrStudentExists
	}
	return err
}

func (s *Store) HasAttendanceRecord(ctx context.Context, sessionID, rollNo string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE session_id = $1 AND roll_no = $2
		)
	`, sessionID, rollNo)
	err := row.Scan(&exists)
	return exists, err
}

func (s *Store) CreateAttendanceRecord(ctx context.Context, record model.AttendanceRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, session_id, roll_no, method, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.SessionID, record.RollNo, record.Method, record.RecordedAt)
	if isUniqueViolation(err) {
		return checkin.ErrAlreadyCheckedIn
	}
	return err
}

func (s *Store) ListAttendanceBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	if !validSessionID(sessionID) {
		return nil, checkin.ErrSessionNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, roll_no, method, recorded_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY recorded_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.AttendanceRecord, 0)
	for rows.Next() {
		var record model.AttendanceRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.RollNo, &record.Method, &record.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
