package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
	"github.com/deyoyk/RankedBedwarsV2/internal/engine/memengine"
)

type unavailableEngine struct {
	engine.Adapter
}

func (unavailableEngine) Name() string    { return "unavailable" }
func (unavailableEngine) Available() bool { return false }

func TestDetectSelectsFirstAvailable(t *testing.T) {
	mem := memengine.New(100)
	adapter, err := engine.Detect(unavailableEngine{}, mem)
	require.NoError(t, err)
	assert.Equal(t, "memory", adapter.Name())
}

func TestDetectNoEngine(t *testing.T) {
	_, err := engine.Detect(unavailableEngine{})
	assert.ErrorIs(t, err, engine.ErrNoEngine)
}

func TestMemEnginePlacement(t *testing.T) {
	ctx := context.Background()
	mem := memengine.New(100)
	mem.AddArena("aqua1", 8)
	mem.Join("Alice")

	require.NoError(t, mem.PlacePlayer(ctx, "alice", "aqua1", engine.TeamOne))

	n, err := mem.Occupants(ctx, "aqua1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemEnginePlaceOfflinePlayer(t *testing.T) {
	mem := memengine.New(100)
	mem.AddArena("aqua1", 8)

	err := mem.PlacePlayer(context.Background(), "ghost", "aqua1", engine.TeamOne)
	assert.ErrorIs(t, err, engine.ErrPlayerOffline)
}

func TestMemEnginePlaceUnknownArena(t *testing.T) {
	mem := memengine.New(100)
	mem.Join("Alice")

	err := mem.PlacePlayer(context.Background(), "alice", "nowhere", engine.TeamOne)
	assert.ErrorIs(t, err, engine.ErrArenaNotFound)
}

func TestMemEngineIsOnlineCaseInsensitive(t *testing.T) {
	mem := memengine.New(100)
	mem.Join("AlIcE")

	online, original := mem.IsOnline("alice")
	assert.True(t, online)
	assert.Equal(t, "AlIcE", original)

	online, _ = mem.IsOnline("bob")
	assert.False(t, online)
}

func TestMemEngineLeaveEmptiesArena(t *testing.T) {
	ctx := context.Background()
	mem := memengine.New(100)
	mem.AddArena("aqua1", 8)
	mem.Join("Alice")
	require.NoError(t, mem.PlacePlayer(ctx, "Alice", "aqua1", engine.TeamOne))

	mem.Leave("Alice")

	n, err := mem.Occupants(ctx, "aqua1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	online, _ := mem.IsOnline("Alice")
	assert.False(t, online)
}

func TestMemEngineNotifyOnlyOnlinePlayers(t *testing.T) {
	mem := memengine.New(100)
	mem.Join("Alice")

	mem.NotifyPlayers([]string{"Alice", "Bob"}, "hello")

	assert.Equal(t, []string{"hello"}, mem.PlayerMessages("alice"))
	assert.Empty(t, mem.PlayerMessages("bob"))
}
