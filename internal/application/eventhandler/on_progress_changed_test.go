package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/messaging"
)

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return f.err
}

type fakeSink struct {
	applied   map[string]profile.Progress
	forgotten []string
}

func (f *fakeSink) Apply(userID string, p profile.Progress) {
	if f.applied == nil {
		f.applied = map[string]profile.Progress{}
	}
	f.applied[userID] = p
}

func (f *fakeSink) Forget(userID string) { f.forgotten = append(f.forgotten, userID) }

func newBus(t *testing.T, h *OnProgressChangedHandler) *messaging.InMemoryEventBus {
	t.Helper()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	require.NoError(t, h.Register(bus))
	return bus
}

func TestOnProgressChanged_AppliesSnapshotAndInvalidates(t *testing.T) {
	inv := &fakeInvalidator{}
	sink := &fakeSink{}
	bus := newBus(t, NewOnProgressChangedHandler(inv, sink, nil, ProgressChangedConfig{}))

	snapshot := map[string][]string{"v0": {"export", "first-ui"}}
	require.NoError(t, bus.Publish(shared.NewProgressChangedEvent("u1", "v0", "export", true, 35, snapshot).WithRevision(4)))

	require.Contains(t, sink.applied, "u1")
	assert.Equal(t, 35, sink.applied["u1"].VibeCoins)
	assert.EqualValues(t, 4, sink.applied["u1"].Revision)
	assert.True(t, sink.applied["u1"].CompletedChapters.Has("v0", "first-ui"))
	assert.Equal(t, 1, inv.calls)
}

func TestOnProgressChanged_ProfileEvents(t *testing.T) {
	inv := &fakeInvalidator{}
	sink := &fakeSink{}
	bus := newBus(t, NewOnProgressChangedHandler(inv, sink, nil, ProgressChangedConfig{}))

	require.NoError(t, bus.Publish(shared.NewProfileRenamedEvent("u1", "Ada", "Grace")))
	require.NoError(t, bus.Publish(shared.NewCoinsReconciledEvent("u2", 3, 20)))
	require.NoError(t, bus.Publish(shared.NewAccountDeletedEvent("u3")))

	assert.Equal(t, 3, inv.calls)
	assert.Equal(t, []string{"u2", "u3"}, sink.forgotten)
	assert.Empty(t, sink.applied)
}

func TestOnProgressChanged_InvalidationFailureIsNotFatal(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	h := NewOnProgressChangedHandler(inv, nil, nil, ProgressChangedConfig{})

	err := h.HandleProgressChanged(shared.NewProgressChangedEvent("u1", "v0", "export", true, 15, nil))
	assert.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
}

func TestOnProgressChanged_IgnoresMalformedEvents(t *testing.T) {
	inv := &fakeInvalidator{}
	h := NewOnProgressChangedHandler(inv, &fakeSink{}, nil, ProgressChangedConfig{})

	assert.NoError(t, h.HandleProgressChanged(shared.NewAccountDeletedEvent("u1")))
	assert.Zero(t, inv.calls)
}
