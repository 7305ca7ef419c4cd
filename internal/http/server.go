package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presage/attendance/internal/checkin"
	"presage/attendance/internal/config"
	"presage/attendance/internal/model"
	"presage/attendance/internal/token"
)

type Server struct {
	cfg     config.Config
	service *checkin.Service
}

func NewServer(cfg config.Config, service *checkin.Service) *Server {
	return &Server{cfg: cfg, service: service}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/session/start", s.handleStartSession)
	r.Get("/api/session/{id}/token", s.handleMintToken)
	r.Post("/api/session/{id}/stop", s.handleStopSession)
	r.Get("/api/session/{id}/attendance", s.handleSessionAttendance)
	r.Post("/api/attendance/checkin", s.handleCheckIn)
	r.Post("/api/admin/student", s.handleCreateStudent)

	return r
}

// Models

type startSessionRequest struct {
	TeacherID string `json:"teacher_id"`
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
}

type checkInRequest struct {
	RollNo    string `json:"roll_no"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type createStudentRequest struct {
	RollNo  string `json:"roll_no"`
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

type recordResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	RollNo     string `json:"roll_no"`
	Method     string `json:"verification_method"`
	RecordedAt int64  `json:"recorded_at"`
}

type studentResponse struct {
	RollNo  string `json:"roll_no"`
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

// Handlers

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	session, err := s.service.StartSession(r.Context(), req.TeacherID, req.ClassID, req.SubjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": session.ID})
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ttl := time.Duration(0)
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}
	minted, err := s.service.MintToken(r.Context(), sessionID, ttl)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      minted.Token,
		"expires_at": minted.ExpiresAt,
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StopSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionAttendance(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.SessionAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]recordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, mapRecord(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": resp})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	record, err := s.service.CheckIn(r.Context(), req.RollNo, req.SessionID, req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"record": mapRecord(record),
	})
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	student, err := s.service.RegisterStudent(r.Context(), req.RollNo, req.Name, req.ClassID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"student": studentResponse{
			RollNo:  student.RollNo,
			Name:    student.Name,
			ClassID: student.ClassID,
		},
	})
}

// Mapping helpers

func mapRecord(record model.AttendanceRecord) recordResponse {
	return recordResponse{
		ID:         record.ID,
		SessionID:  record.SessionID,
		RollNo:     record.RollNo,
		Method:     record.Method,
		RecordedAt: record.RecordedAt.UnixMilli(),
	}
}

// writeServiceError translates the verification core's error taxonomy into
// the wire codes. Anything unrecognized becomes a generic server_error so
// internals never leak.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "missing_fields")
	case errors.Is(err, checkin.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, checkin.ErrSessionNotActive):
		writeError(w, http.StatusBadRequest, "session_not_active")
	case errors.Is(err, token.ErrMalformedToken):
		writeInvalidToken(w, "malformed_token")
	case errors.Is(err, token.ErrInvalidSignature):
		writeInvalidToken(w, "invalid_signature")
	case errors.Is(err, checkin.ErrTokenSessionMismatch):
		writeError(w, http.StatusUnauthorized, "token_session_mismatch")
	case errors.Is(err, checkin.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, "token_expired")
	case errors.Is(err, checkin.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "student_not_found")
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		writeError(w, http.StatusBadRequest, "already_checked_in")
	case errors.Is(err, checkin.ErrStudentExists):
		writeError(w, http.StatusConflict, "student_exists")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func writeInvalidToken(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":  "invalid_token",
		"reason": reason,
	})
}

// Utilities

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
