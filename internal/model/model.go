package model

import "time"

type Session struct {
	ID        string
	TeacherID string
	ClassID   string
	SubjectID string
	Secret    string
	Active    bool
	CreatedAt time.Time
}

type Student struct {
	RollNo  string
	Name    string
	ClassID string
}

type AttendanceRecord struct {
	ID         string
	SessionID  string
	RollNo     string
	Method     string
	RecordedAt time.Time
}
