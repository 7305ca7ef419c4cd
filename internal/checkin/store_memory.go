package checkin

import (
	"context"
	"sync"
	"time"

	"presage/attendance/internal/model"
)

// MemoryStore is an in-memory Store used by tests. It enforces the same
// (session_id, roll_no) uniqueness the Postgres schema does, so concurrent
// duplicate check-ins behave identically against either backend.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	students map[string]model.Student
	records  map[string]model.AttendanceRecord // keyed session_id+"\x00"+roll_no
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
		students: make(map[string]model.Student),
		records:  make(map[string]model.AttendanceRecord),
	}
}

func recordKey(sessionID, rollNo string) string {
	return sessionID + "\x00" + rollNo
}

func (m *MemoryStore) CreateSession(_ context.Context, session model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return model.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *MemoryStore) DeactivateSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.Active = false
	m.sessions[id] = session
	return nil
}

func (m *MemoryStore) DeactivateSessionsBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []string
	for id, session := range m.sessions {
		if session.Active && session.CreatedAt.Before(cutoff) {
			session.Active = false
			m.sessions[id] = session
			closed = append(closed, id)
		}
	}
	return closed, nil
}

func (m *MemoryStore) GetStudent(_ context.Context, rollNo string) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	student, ok := m.students[rollNo]
	if !ok {
		return model.Student{}, ErrStudentNotFound
	}
	return student, nil
}

func (m *MemoryStore) CreateStudent(_ context.Context, student model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[student.RollNo]; ok {
		return ErrStudentExists
	}
	m.students[student.RollNo] = student
	return nil
}

func (m *MemoryStore) HasAttendanceRecord(_ context.Context, sessionID, rollNo string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[recordKey(sessionID, rollNo)]
	return ok, nil
}

func (m *MemoryStore) CreateAttendanceRecord(_ context.Context, record model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(record.SessionID, record.RollNo)
	if _, ok := m.records[key]; ok {
		return ErrAlreadyCheckedIn
	}
	m.records[key] = record
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryStore) ListAttendanceBySession(_ context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]model.AttendanceRecord, 0)
	for _, key := range m.order {
		record := m.records[key]
		if record.SessionID == sessionID {
			records = append(records, record)
		}
	}
	return records, nil
}
