package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.EnsureCreated(context.Background()))
	return r
}

func TestEnsureCreatedIsIdempotent(t *testing.T) {
	r := openRepo(t)
	require.NoError(t, r.EnsureCreated(context.Background()))
}

func TestGetDeviceOnEmptyDatabase(t *testing.T) {
	r := openRepo(t)
	d, err := r.GetDevice(context.Background(), 2)
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestAddAndGetDevice(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	d := NewDevice("test", 1, false)
	require.NoError(t, r.AddDevice(ctx, d))
	require.NotZero(t, d.ID)

	got, err := r.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d, got)

	group, err := r.GetGroup(ctx, 1)
	require.NoError(t, err)
	require.Len(t, group, 1)
}

func TestGetDevicesAndGroups(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	require.NoError(t, r.AddDevice(ctx, NewDevice("test1", 1, false)))
	require.NoError(t, r.AddDevice(ctx, NewDevice("test2", 2, false)))

	all, err := r.GetDevices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	g2, err := r.GetGroup(ctx, 2)
	require.NoError(t, err)
	require.Len(t, g2, 1)
	require.Equal(t, "test2", g2[0].Name)

	none, err := r.GetGroup(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestUpdateDeviceFollowsReferences(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	master := NewDevice("master", 1, false)
	slave := NewDevice("slave", 1, false)
	other := NewDevice("other", 1, false)
	for _, d := range []*Device{master, slave, other} {
		require.NoError(t, r.AddDevice(ctx, d))
	}
	require.NoError(t, r.AddReference(ctx, master.ID, slave.ID))

	refs, err := r.GetReferences(ctx, master.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{slave.ID}, refs)

	master.CurrentState = true
	require.NoError(t, r.UpdateDevice(ctx, master))

	all, err := r.GetDevices(ctx)
	require.NoError(t, err)
	state := map[string]bool{}
	for _, d := range all {
		state[d.Name] = d.CurrentState
	}
	require.Equal(t, map[string]bool{"master": true, "slave": true, "other": false}, state)

	got, err := r.GetDevice(ctx, master.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{slave.ID}, got.ReferenceIDs())
}

func TestUpdateDevices(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)

	a := NewDevice("a", 1, false)
	b := NewDevice("b", 1, false)
	require.NoError(t, r.AddDevice(ctx, a))
	require.NoError(t, r.AddDevice(ctx, b))

	a.CurrentState, b.CurrentState = true, true
	require.NoError(t, r.UpdateDevices(ctx, []Device{*a, *b}))

	all, err := r.GetDevices(ctx)
	require.NoError(t, err)
	for _, d := range all {
		require.True(t, d.CurrentState, d.Name)
	}
}

func TestDeviceJSON(t *testing.T) {
	b, err := json.Marshal(Device{ID: 3, Name: "lamp", GroupID: 1, CurrentState: true, References: "4,5"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":3,"name":"lamp","groupId":1,"currentState":true,"references":"4,5"}`, string(b))
}
