// Package session keeps the per-user conversation state: the active flow, the
// index of the pending prompt and the answers collected so far.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/m3rciful/receiptbot/internal/flows"
)

// ErrNotFound is returned by Store.Get when the user has no session.
var ErrNotFound = errors.New("session: not found")

// Session is one user's conversational state between turns.
type Session struct {
	UserID     int64          `json:"user_id"`
	ActiveFlow string         `json:"active_flow,omitempty"`
	Cursor     int            `json:"cursor"`
	Answers    []flows.Answer `json:"answers,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Idle reports whether no flow is active.
func (s *Session) Idle() bool {
	return s == nil || s.ActiveFlow == ""
}

// Store persists sessions keyed by Telegram user id.
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID int64) error
}

func clone(s *Session) *Session {
	cp := *s
	if s.Answers != nil {
		cp.Answers = append([]flows.Answer(nil), s.Answers...)
	}
	return &cp
}
