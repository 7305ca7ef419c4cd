package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate bootstraps the schema. The UNIQUE constraint on
// (session_id, roll_no) is load-bearing: it is what makes duplicate
// suppression hold under concurrent check-ins, not the pre-insert read.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS students (
			roll_no  TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			class_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_sessions (
			id         UUID PRIMARY KEY,
			teacher_id TEXT NOT NULL,
			class_id   TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			secret     TEXT NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id          UUID PRIMARY KEY,
			session_id  UUID NOT NULL REFERENCES attendance_sessions (id),
			roll_no     TEXT NOT NULL REFERENCES students (roll_no),
			method      TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			UNIQUE (session_id, roll_no)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
