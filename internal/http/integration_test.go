package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// These tests run against a live service (Postgres, optionally Redis)
// started out of band. They cover the end-to-end paths unit tests drive
// through the in-memory store, plus real wall-clock token expiry.

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type mintResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type checkInResponse struct {
	Status string `json:"status"`
	Record struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
		RollNo    string `json:"roll_no"`
		Method    string `json:"verification_method"`
	} `json:"record"`
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func registerStudent(t *testing.T, baseURL, rollNo string) {
	t.Helper()
	resp, body := postJSON(t, baseURL+"/api/admin/student", map[string]string{
		"roll_no":  rollNo,
		"name":     "Integration Student",
		"class_id": "class-1",
	})
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		t.Fatalf("register student status %d (%s)", resp.StatusCode, body)
	}
}

func startSession(t *testing.T, baseURL string) string {
	t.Helper()
	resp, body := postJSON(t, baseURL+"/api/session/start", map[string]string{
		"teacher_id": "teacher-1",
		"class_id":   "class-1",
		"subject_id": "subject-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start session status %d (%s)", resp.StatusCode, body)
	}
	var started startSessionResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return started.SessionID
}

func TestCheckInEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8084")
	rollNo := fmt.Sprintf("it-%d", time.Now().UnixNano())

	registerStudent(t, baseURL, rollNo)
	sessionID := startSession(t, baseURL)

	resp, body := getJSON(t, baseURL+"/api/session/"+sessionID+"/token?ttl=30")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint status %d (%s)", resp.StatusCode, body)
	}
	var minted mintResponse
	if err := json.Unmarshal(body, &minted); err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	resp, body = postJSON(t, baseURL+"/api/attendance/checkin", map[string]string{
		"roll_no":    rollNo,
		"session_id": sessionID,
		"token":      minted.Token,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in status %d (%s)", resp.StatusCode, body)
	}
	var checked checkInResponse
	if err := json.Unmarshal(body, &checked); err != nil {
		t.Fatalf("decode check-in: %v", err)
	}
	if checked.Record.Method != "qr" || checked.Record.SessionID != sessionID {
		t.Fatalf("unexpected record %+v", checked.Record)
	}

	// Duplicate check-in hits the schema constraint.
	resp, body = postJSON(t, baseURL+"/api/attendance/checkin", map[string]string{
		"roll_no":    rollNo,
		"session_id": sessionID,
		"token":      minted.Token,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate status %d (%s)", resp.StatusCode, body)
	}
	var dupErr errorResponse
	if err := json.Unmarshal(body, &dupErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if dupErr.Error != "already_checked_in" {
		t.Fatalf("expected already_checked_in, got %s", dupErr.Error)
	}
}

func TestTokenExpiryEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8084")
	rollNo := fmt.Sprintf("it-%d", time.Now().UnixNano())

	registerStudent(t, baseURL, rollNo)
	sessionID := startSession(t, baseURL)

	resp, body := getJSON(t, baseURL+"/api/session/"+sessionID+"/token?ttl=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint status %d (%s)", resp.StatusCode, body)
	}
	var minted mintResponse
	if err := json.Unmarshal(body, &minted); err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	resp, body = postJSON(t, baseURL+"/api/attendance/checkin", map[string]string{
		"roll_no":    rollNo,
		"session_id": sessionID,
		"token":      minted.Token,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expired check-in status %d (%s)", resp.StatusCode, body)
	}
	var expErr errorResponse
	if err := json.Unmarshal(body, &expErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if expErr.Error != "token_expired" {
		t.Fatalf("expected token_expired, got %s", expErr.Error)
	}
}

func TestNonUUIDSessionIDEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8084")
	rollNo := fmt.Sprintf("it-%d", time.Now().UnixNano())
	registerStudent(t, baseURL, rollNo)

	// Session ids are opaque to clients, so a non-UUID id is a legal
	// request and must come back as not-found, not a server error.
	resp, body := getJSON(t, baseURL+"/api/session/not-a-uuid/token")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("mint with non-uuid id status %d (%s)", resp.StatusCode, body)
	}
	var mintErr errorResponse
	if err := json.Unmarshal(body, &mintErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if mintErr.Error != "session_not_found" {
		t.Fatalf("expected session_not_found, got %s", mintErr.Error)
	}

	resp, body = postJSON(t, baseURL+"/api/attendance/checkin", map[string]string{
		"roll_no":    rollNo,
		"session_id": "not-a-uuid",
		"token":      "whatever",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("check-in with non-uuid id status %d (%s)", resp.StatusCode, body)
	}
	var checkErr errorResponse
	if err := json.Unmarshal(body, &checkErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if checkErr.Error != "session_not_found" {
		t.Fatalf("expected session_not_found, got %s", checkErr.Error)
	}

	resp, body = getJSON(t, baseURL+"/api/session/not-a-uuid/attendance")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("attendance with non-uuid id status %d (%s)", resp.StatusCode, body)
	}
}

func TestStopSessionEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ATTENDANCE_HTTP_ADDR", "http://127.0.0.1:8084")
	sessionID := startSession(t, baseURL)

	resp, err := http.Post(baseURL+"/api/session/"+sessionID+"/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("stop session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop status %d", resp.StatusCode)
	}

	getResp, body := getJSON(t, baseURL+"/api/session/"+sessionID+"/token")
	if getResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mint on stopped session status %d (%s)", getResp.StatusCode, body)
	}
}
