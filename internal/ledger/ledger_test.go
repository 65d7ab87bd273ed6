package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatch() *Match {
	return NewMatch("g1", "haqua", true,
		[]string{"alice", "bob"},
		[]string{"carol", "dave"},
	)
}

func TestMatchIncrements(t *testing.T) {
	m := newTestMatch()
	m.AddKill("alice")
	m.AddKill("alice")
	m.AddFinalKill("alice")
	m.AddDeath("carol")
	m.AddBlockPlaced("bob")
	m.AddPickup("bob", Diamond)
	m.AddPickup("bob", Iron)
	m.AddPickup("bob", Gold)
	m.AddPickup("bob", Emerald)

	alice, ok := m.Stats("alice")
	require.True(t, ok)
	assert.Equal(t, 2, alice.Kills)
	assert.Equal(t, 1, alice.FinalKills)

	bob, _ := m.Stats("bob")
	assert.Equal(t, 1, bob.BlocksPlaced)
	assert.Equal(t, 1, bob.Diamonds)
	assert.Equal(t, 1, bob.Irons)
	assert.Equal(t, 1, bob.Gold)
	assert.Equal(t, 1, bob.Emeralds)
}

func TestMatchDropsUnrosteredPlayer(t *testing.T) {
	m := newTestMatch()
	m.AddKill("mallory")
	_, ok := m.Stats("mallory")
	assert.False(t, ok)
}

func TestMatchBedBreakersUniqueOrdered(t *testing.T) {
	m := newTestMatch()
	m.AddBedBroken("carol")
	m.AddBedBroken("alice")
	m.AddBedBroken("carol")

	rec := m.Finish(Team1)
	assert.Equal(t, []string{"carol", "alice"}, rec.BedsBroken)

	carol := rec.Players["carol"]
	assert.Equal(t, 2, carol.BedsBroken)
}

func TestMatchConcurrentIncrementsLoseNothing(t *testing.T) {
	m := newTestMatch()
	const perWorker = 500
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.AddKill("alice")
				m.AddBlockPlaced("bob")
			}
		}()
	}
	wg.Wait()

	alice, _ := m.Stats("alice")
	assert.Equal(t, 8*perWorker, alice.Kills)
	bob, _ := m.Stats("bob")
	assert.Equal(t, 8*perWorker, bob.BlocksPlaced)
}

func TestFinishTeam2Winner(t *testing.T) {
	m := newTestMatch()
	rec := m.Finish(Team2)
	assert.Equal(t, []string{"carol", "dave"}, rec.WinningTeam)
	assert.True(t, rec.Players["carol"].Won)
	assert.False(t, rec.Players["alice"].Won)
}

func TestFinishTieDefaultsToTeam1(t *testing.T) {
	m := newTestMatch()
	rec := m.Finish(0)
	assert.Equal(t, []string{"alice", "bob"}, rec.WinningTeam)
}

func TestFinishPicksMVPFromWinningTeam(t *testing.T) {
	m := newTestMatch()
	m.AddKill("carol")      // loser with most kills
	m.AddKill("carol")      //
	m.AddKill("carol")      //
	m.AddFinalKill("bob")   // winner impact
	m.AddBedBroken("alice") //

	rec := m.Finish(Team1)
	assert.Equal(t, []string{"bob"}, rec.MVPs, "final kill weighs double")
}

func TestFinishFreezesLedger(t *testing.T) {
	m := newTestMatch()
	m.Finish(Team1)
	m.AddKill("alice")

	alice, _ := m.Stats("alice")
	assert.Equal(t, 0, alice.Kills)
}

func TestManagerLifecycle(t *testing.T) {
	mgr := NewManager()
	match := mgr.Open("g1", "haqua", true, []string{"alice"}, []string{"bob"})

	got, ok := mgr.Get("haqua")
	require.True(t, ok)
	assert.Same(t, match, got)

	byID, ok := mgr.GetByGameID("g1")
	require.True(t, ok)
	assert.Same(t, match, byID)

	mgr.Remove("haqua")
	mgr.Remove("haqua")
	_, ok = mgr.Get("haqua")
	assert.False(t, ok)
	assert.Equal(t, 0, mgr.Len())
}

func TestManagerOpenReplacesStaleLedger(t *testing.T) {
	mgr := NewManager()
	mgr.Open("g1", "haqua", true, []string{"alice"}, []string{"bob"})
	fresh := mgr.Open("g2", "haqua", false, []string{"carol"}, []string{"dave"})

	got, ok := mgr.Get("haqua")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, mgr.Len())
}
