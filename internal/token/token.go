// Package token implements the ephemeral attendance token: a JSON payload
// authenticated with HMAC-SHA256 under a per-session secret and wrapped in
// base64 for transport inside a QR code. The codec is pure; expiry policy
// lives with the verifier.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Payload is the signed content of a token. Ts is the issue time in
// milliseconds since epoch, TTL the validity window in milliseconds.
type Payload struct {
	SessionID string `json:"session_id"`
	Ts        int64  `json:"ts"`
	TTL       int64  `json:"ttl"`
}

const secretBytes = 32

// NewSecret returns a fresh hex-encoded 256-bit session secret. Called once
// per session at creation; the secret is immutable afterwards.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Encode serializes the payload, signs it with the session secret and
// packages everything as base64(base64(json) + "." + hex(mac)).
func Encode(secret string, payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	inner := base64.StdEncoding.EncodeToString(data) + "." + hex.EncodeToString(sign(secret, data))
	return base64.StdEncoding.EncodeToString([]byte(inner)), nil
}

// Decode reverses Encode and verifies the MAC with the given secret. Any
// structural failure yields ErrMalformedToken; a MAC mismatch yields
// ErrInvalidSignature. The MAC comparison is constant time.
func Decode(secret, tok string) (Payload, error) {
	decoded, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return Payload{}, ErrMalformedToken
	}
	dataB64, sigHex, found := strings.Cut(string(decoded), ".")
	if !found {
		return Payload{}, ErrMalformedToken
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return Payload{}, ErrMalformedToken
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return Payload{}, ErrMalformedToken
	}
	if !hmac.Equal(sig, sign(secret, data)) {
		return Payload{}, ErrInvalidSignature
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, ErrMalformedToken
	}
	return payload, nil
}

func sign(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return mac.Sum(nil)
}
