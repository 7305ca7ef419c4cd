// Package checkin holds the verification core: session creation with a
// per-session secret, token minting, and the ordered check-in pipeline that
// turns a scanned token into an attendance record.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"presage/attendance/internal/model"
	"presage/attendance/internal/token"
)

const MethodQR = "qr"

// Fallback validity when a signed payload carries no ttl. Minted tokens
// always embed one; this only applies to payloads signed elsewhere.
const fallbackTTLMillis = 15_000

type Service struct {
	store      Store
	redis      *redis.Client
	defaultTTL time.Duration
	cacheTTL   time.Duration
	now        func() time.Time
	newSecret  func() (string, error)
}

// NewService wires the verification core. redisClient may be nil; minting
// then always reads the session from the store.
func NewService(store Store, redisClient *redis.Client, defaultTTL, cacheTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		store:      store,
		redis:      redisClient,
		defaultTTL: defaultTTL,
		cacheTTL:   cacheTTL,
		now:        time.Now,
		newSecret:  token.NewSecret,
	}
}

// Minted carries a freshly signed token together with its absolute expiry in
// milliseconds since epoch. ExpiresAt is for client display only; the
// verifier trusts the signed payload, never this value.
type Minted struct {
	Token     string
	ExpiresAt int64
}

func (s *Service) StartSession(ctx context.Context, teacherID, classID, subjectID string) (model.Session, error) {
	if teacherID == "" || classID == "" || subjectID == "" {
		return model.Session{}, ErrMissingFields
	}
	// An RNG fault is a local failure, not a storage one; keep it out of
	// the ErrStorage taxonomy so callers don't treat it as retryable.
	secret, err := s.newSecret()
	if err != nil {
		return model.Session{}, fmt.Errorf("generate session secret: %w", err)
	}
	session := model.Session{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		ClassID:   classID,
		SubjectID: subjectID,
		Secret:    secret,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return model.Session{}, s.wrapStoreErr(err)
	}
	return session, nil
}

func (s *Service) MintToken(ctx context.Context, sessionID string, ttl time.Duration) (Minted, error) {
	if sessionID == "" {
		return Minted{}, ErrMissingFields
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	session, err := s.sessionForMint(ctx, sessionID)
	if err != nil {
		return Minted{}, err
	}
	if !session.Active {
		return Minted{}, ErrSessionNotActive
	}
	payload := token.Payload{
		SessionID: session.ID,
		Ts:        s.now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
	tok, err := token.Encode(session.Secret, payload)
	if err != nil {
		return Minted{}, fmt.Errorf("encode token: %w", err)
	}
	tokensMinted.Inc()
	return Minted{Token: tok, ExpiresAt: payload.Ts + payload.TTL}, nil
}

// CheckIn validates a (roll_no, session_id, token) triple and records the
// attendance. Steps run in a fixed order and short-circuit with a distinct
// error; the final insert is the only mutation.
func (s *Service) CheckIn(ctx context.Context, rollNo, sessionID, tok string) (model.AttendanceRecord, error) {
	record, err := s.checkIn(ctx, rollNo, sessionID, tok)
	checkins.WithLabelValues(checkinResult(err)).Inc()
	return record, err
}

func (s *Service) checkIn(ctx context.Context, rollNo, sessionID, tok string) (model.AttendanceRecord, error) {
	if rollNo == "" || sessionID == "" || tok == "" {
		return model.AttendanceRecord{}, ErrMissingFields
	}

	// Secrets are only ever read from the store here; the mint-side cache
	// must not vouch for a check-in.
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.AttendanceRecord{}, s.wrapStoreErr(err)
	}
	if !session.Active {
		return model.AttendanceRecord{}, ErrSessionNotActive
	}

	payload, err := token.Decode(session.Secret, tok)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if payload.SessionID != sessionID {
		return model.AttendanceRecord{}, ErrTokenSessionMismatch
	}
	ttl := payload.TTL
	if ttl <= 0 {
		ttl = fallbackTTLMillis
	}
	// Strict window: a token dies exactly at ts+ttl. A future ts passes
	// (negative elapsed), tolerating clock drift between mint and verify.
	if s.now().UnixMilli()-payload.Ts >= ttl {
		return model.AttendanceRecord{}, ErrTokenExpired
	}

	if _, err := s.store.GetStudent(ctx, rollNo); err != nil {
		return model.AttendanceRecord{}, s.wrapStoreErr(err)
	}

	// Fast path for the common double-tap; the store's uniqueness
	// constraint is what actually guarantees a single record.
	exists, err := s.store.HasAttendanceRecord(ctx, sessionID, rollNo)
	if err != nil {
		return model.AttendanceRecord{}, s.wrapStoreErr(err)
	}
	if exists {
		return model.AttendanceRecord{}, ErrAlreadyCheckedIn
	}

	record := model.AttendanceRecord{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		RollNo:     rollNo,
		Method:     MethodQR,
		RecordedAt: s.now().UTC(),
	}
	if err := s.store.CreateAttendanceRecord(ctx, record); err != nil {
		return model.AttendanceRecord{}, s.wrapStoreErr(err)
	}
	return record, nil
}

// StopSession deactivates a session. No new tokens can be minted and no
// check-in can succeed afterwards; the secret stays untouched.
func (s *Service) StopSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingFields
	}
	if err := s.store.DeactivateSession(ctx, sessionID); err != nil {
		return s.wrapStoreErr(err)
	}
	s.dropCachedSession(ctx, sessionID)
	return nil
}

func (s *Service) SessionAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	if sessionID == "" {
		return nil, ErrMissingFields
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, s.wrapStoreErr(err)
	}
	records, err := s.store.ListAttendanceBySession(ctx, sessionID)
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	return records, nil
}

func (s *Service) RegisterStudent(ctx context.Context, rollNo, name, classID string) (model.Student, error) {
	if rollNo == "" || name == "" || classID == "" {
		return model.Student{}, ErrMissingFields
	}
	student := model.Student{RollNo: rollNo, Name: name, ClassID: classID}
	if err := s.store.CreateStudent(ctx, student); err != nil {
		return model.Student{}, s.wrapStoreErr(err)
	}
	return student, nil
}

// CloseStaleSessions deactivates every active session created before cutoff
// and evicts their mint-side cache entries, so a closed session stops
// minting immediately instead of after the cache TTL. Returns the number of
// sessions closed.
func (s *Service) CloseStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.store.DeactivateSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, s.wrapStoreErr(err)
	}
	for _, id := range ids {
		s.dropCachedSession(ctx, id)
	}
	return int64(len(ids)), nil
}

func (s *Service) sessionForMint(ctx context.Context, sessionID string) (model.Session, error) {
	if session, ok := s.loadCachedSession(ctx, sessionID); ok {
		return session, nil
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, s.wrapStoreErr(err)
	}
	if session.Active {
		s.cacheSession(ctx, session)
	}
	return session, nil
}

func (s *Service) wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrStudentNotFound),
		errors.Is(err, ErrAlreadyCheckedIn),
		errors.Is(err, ErrStudentExists):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

func checkinResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrStorage):
		return "error"
	default:
		return "rejected"
	}
}
