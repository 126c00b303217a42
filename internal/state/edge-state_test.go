package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/rfedge/internal/rfedge"
)

func newStore(now *time.Time) *edgeStateStore {
	s := NewEdgeStateStore().(*edgeStateStore)
	s.now = func() time.Time { return *now }
	return s
}

func TestFirstStateIsPublished(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newStore(&now)
	require.True(t, s.NeedsPublish(rfedge.DeviceState{Device: "2", State: "on", Status: "ok"}, time.Minute))
}

func TestUnchangedStateWaitsForHeartbeat(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newStore(&now)
	st := rfedge.DeviceState{Device: "2", Kind: "nexa-unit", State: "on", Status: "ok", Timestamp: now}
	s.Update("2", st)

	st.Timestamp = now.Add(time.Second)
	require.False(t, s.NeedsPublish(st, time.Minute))

	now = now.Add(61 * time.Second)
	require.True(t, s.NeedsPublish(st, time.Minute))
	require.False(t, s.NeedsPublish(st, 0))
}

func TestChangedStateIsPublished(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newStore(&now)
	s.Update("2", rfedge.DeviceState{Device: "2", State: "on", Status: "ok"})

	require.True(t, s.NeedsPublish(rfedge.DeviceState{Device: "2", State: "off", Status: "ok"}, time.Minute))
	require.True(t, s.NeedsPublish(rfedge.DeviceState{Device: "2", State: "on", Status: "error", Error: "x"}, time.Minute))
}

func TestClearForgetsEverything(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newStore(&now)
	st := rfedge.DeviceState{Device: "2", State: "on", Status: "ok"}
	s.Update("2", st)
	s.Clear()

	_, _, ok := s.GetLast("2")
	require.False(t, ok)
	require.True(t, s.NeedsPublish(st, time.Hour))
}
