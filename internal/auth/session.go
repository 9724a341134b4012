// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// sessionNonceBytes is the size of the random component mixed into session ids.
const sessionNonceBytes = 16

// ClientMeta describes the client that opened a session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// Session is one issued session record. Rotation creates a new record;
// old records are kept as history.
type Session struct {
	ID              ulid.ULID
	UserID          ulid.ULID
	HashedSessionID string
	SessionStart    time.Time
	ExpiredAt       time.Time
	CreatedAt       time.Time
	UserAgent       string
	IPAddress       string
}

// NewSession creates a validated Session starting at start.
func NewSession(userID ulid.ULID, hashedSessionID string, start, expiredAt time.Time, meta ClientMeta) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if hashedSessionID == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("hashed session id cannot be empty")
	}
	if !expiredAt.After(start) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("session_start", start).
			With("expired_at", expiredAt).
			Errorf("session must expire after it starts")
	}

	return &Session{
		ID:              ulid.Make(),
		UserID:          userID,
		HashedSessionID: hashedSessionID,
		SessionStart:    start,
		ExpiredAt:       expiredAt,
		CreatedAt:       start,
		UserAgent:       meta.UserAgent,
		IPAddress:       meta.IPAddress,
	}, nil
}

// IsExpiredAt reports whether the session's sliding TTL has elapsed at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return s.ExpiredAt.Before(t)
}

// sessionSeed is serialized with fixed field order before hashing.
type sessionSeed struct {
	ID    string `json:"id"`
	Nonce string `json:"nonce"`
}

// GenerateSessionID derives a hashed session id for userID.
// The id is the SHA-256 of {"id":<user id>,"nonce":<random hex>}, so two
// sessions for the same user never share an id.
func GenerateSessionID(userID ulid.ULID) (string, error) {
	nonce := make([]byte, sessionNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", sessionNonceBytes).
			Wrap(err)
	}
	return hashSessionSeed(userID, hex.EncodeToString(nonce))
}

func hashSessionSeed(userID ulid.ULID, nonce string) (string, error) {
	payload, err := json.Marshal(sessionSeed{ID: userID.String(), Nonce: nonce})
	if err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").Wrap(err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByHash retrieves the most recently created session with the given hashed id.
	GetByHash(ctx context.Context, hashedSessionID string) (*Session, error)

	// ListByUser retrieves a user's sessions, newest first.
	ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]*Session, error)
}
