package session

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory(time.Minute)
	_, err := m.Get(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySaveReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	s := &Session{UserID: 7, ActiveFlow: "sber-receipt", Cursor: 1, Answers: []flows.Answer{{Field: "name", Text: "Alice"}}}
	require.NoError(t, m.Save(ctx, s))

	s.Answers[0].Text = "mutated"
	got, err := m.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Answers[0].Text)
	require.False(t, got.UpdatedAt.IsZero())

	got.Answers = append(got.Answers, flows.Answer{Field: "amount", Text: "1"})
	again, err := m.Get(ctx, 7)
	require.NoError(t, err)
	require.Len(t, again.Answers, 1)
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.Save(ctx, &Session{UserID: 3, ActiveFlow: "x"}))
	require.NoError(t, m.Clear(ctx, 3))
	_, err := m.Get(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, m.Len())
}

func TestMemoryExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Save(ctx, &Session{UserID: 9, ActiveFlow: "x"}))
	now = now.Add(30 * time.Second)
	_, err := m.Get(ctx, 9)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, 9)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, m.Len())
}

func TestIdle(t *testing.T) {
	var nilSession *Session
	require.True(t, nilSession.Idle())
	require.True(t, (&Session{}).Idle())
	require.False(t, (&Session{ActiveFlow: "x"}).Idle())
}
