package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/renderer"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRecorder) Recent(context.Context, int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}

var flow = &flows.Flow{ID: "sber-receipt"}

func TestGatewayRecordsSuccess(t *testing.T) {
	rec := &memoryRecorder{}
	var renderID string
	gw := Wrap(renderer.GatewayFunc(func(ctx context.Context, _ flows.Payload, f *flows.Flow) ([]string, error) {
		flowID, id := logger.RenderFrom(ctx)
		require.Equal(t, f.ID, flowID)
		renderID = id
		return []string{"a.png", "b.png"}, nil
	}), rec)

	ctx := logger.WithUpdateMeta(context.Background(), 10, 77, 77)
	paths, err := gw.Render(ctx, flows.Payload{"name": "Alice"}, flow)
	require.NoError(t, err)
	require.Equal(t, []string{"a.png", "b.png"}, paths)

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	require.NotEmpty(t, e.ID)
	require.Equal(t, e.ID, renderID, "renderer logs carry the journal id")
	require.Equal(t, int64(77), e.UserID)
	require.Equal(t, "sber-receipt", e.FlowID)
	require.Equal(t, OutcomeOK, e.Outcome)
	require.Equal(t, 2, e.Artifacts)
}

func TestGatewayRecordsFailureKind(t *testing.T) {
	rec := &memoryRecorder{}
	want := &renderer.Error{Kind: renderer.KindMissingArtifact, Message: "1 of 2 artifacts not written: dark.png"}
	gw := Wrap(renderer.GatewayFunc(func(context.Context, flows.Payload, *flows.Flow) ([]string, error) {
		return nil, want
	}), rec)

	_, err := gw.Render(context.Background(), nil, flow)
	require.ErrorIs(t, err, want)
	require.Equal(t, string(renderer.KindMissingArtifact), rec.entries[0].Outcome)
	require.Contains(t, rec.entries[0].Message, "dark.png")
}

func TestGatewayIgnoresRecorderFailure(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("disk full")}
	gw := Wrap(renderer.GatewayFunc(func(context.Context, flows.Payload, *flows.Flow) ([]string, error) {
		return []string{"a.png"}, nil
	}), rec)

	paths, err := gw.Render(context.Background(), nil, flow)
	require.NoError(t, err)
	require.Equal(t, []string{"a.png"}, paths)
}

func TestGatewayRecordsAfterCallerCancellation(t *testing.T) {
	rec := &memoryRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	gw := Wrap(renderer.GatewayFunc(func(context.Context, flows.Payload, *flows.Flow) ([]string, error) {
		cancel()
		return nil, &renderer.Error{Kind: renderer.KindTimeout, Message: "cancelled", Err: context.Canceled}
	}), rec)

	_, err := gw.Render(ctx, nil, flow)
	kind, _ := renderer.KindOf(err)
	require.Equal(t, renderer.KindTimeout, kind)
	require.Len(t, rec.entries, 1)
}
