// internal/session/tournament_test.go
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTournamentRunsRoundsToChampion(t *testing.T) {
	d := NewDirectory(fastCfg(), nil)
	c := newTestClient("host")
	s, err := d.Join(c, ModeLocalTournament, 4, []string{"ann", "ben", "cid", "dot"})
	require.NoError(t, err)
	require.Equal(t, 4, s.PlayerCapacity())
	require.True(t, s.Full())

	s.MarkReady(c.ID)

	var champion string
	roundsSeen := map[int]bool{}
	require.Eventually(t, func() bool {
		for _, ev := range drainEvents(c) {
			switch e := ev.(type) {
			case TournamentRoundEvent:
				roundsSeen[e.Round] = true
			case TournamentEndedEvent:
				champion = e.Champion
			}
		}
		return champion != ""
	}, 30*time.Second, 20*time.Millisecond, "tournament must complete")

	assert.True(t, roundsSeen[1], "semifinals announced")
	assert.True(t, roundsSeen[2], "final announced")
	assert.Contains(t, []string{"ann", "ben", "cid", "dot"}, champion)

	require.Eventually(t, func() bool {
		return d.SessionFor(c.ID) == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateEnded, s.State())
}

func TestLocalTournamentPadsShortRosterWithCPUs(t *testing.T) {
	d := NewDirectory(fastCfg(), nil, WithWaitWindow(time.Minute))
	c := newTestClient("solo")
	s, err := d.Join(c, ModeLocalTournament, 4, []string{"solo"})
	require.NoError(t, err)

	entry := s.Summary()
	require.Len(t, entry.Players, 4)
	assert.Equal(t, "solo", entry.Players[0])
	for _, name := range entry.Players[1:] {
		assert.Equal(t, "CPU", name)
	}
	s.End()
}

func TestRemoteTournamentShedsQuitterAndSurvives(t *testing.T) {
	// Long wait window: the bracket never starts, which isolates the
	// seat-shedding rule from match timing.
	d := NewDirectory(fastCfg(), nil, WithWaitWindow(time.Minute))
	a, b := newTestClient("a"), newTestClient("b")
	s, err := d.Join(a, ModeRemoteTournament, 4, nil)
	require.NoError(t, err)
	_, err = d.Join(b, ModeRemoteTournament, 4, nil)
	require.NoError(t, err)

	d.Quit(a.ID)

	assert.Nil(t, d.SessionFor(a.ID))
	assert.Equal(t, s, d.SessionFor(b.ID), "tournament outlives a single quitter")
	assert.NotEqual(t, StateEnded, s.State())

	// The seat is kept, handed to a CPU.
	assert.Len(t, s.Summary().Players, 2)

	d.Quit(b.ID)
	require.Eventually(t, func() bool {
		return s.State() == StateEnded
	}, 2*time.Second, 10*time.Millisecond, "empty tournament ends")
}

func TestWaitWindowFillsWithCPUsAndStarts(t *testing.T) {
	d := NewDirectory(fastCfg(), nil, WithWaitWindow(80*time.Millisecond))
	a := newTestClient("a")
	s, err := d.Join(a, ModeRemoteTournament, 4, nil)
	require.NoError(t, err)
	require.Equal(t, StateWaiting, s.State())

	require.Eventually(t, func() bool {
		return s.State() != StateWaiting
	}, 2*time.Second, 10*time.Millisecond, "window expiry must start the bracket")
	assert.Len(t, s.Summary().Players, 4, "CPU fill completes the bracket")

	// With CPU opponents everywhere the bracket plays itself out.
	var sawChampion bool
	require.Eventually(t, func() bool {
		for _, ev := range drainEvents(a) {
			if _, ok := ev.(TournamentEndedEvent); ok {
				sawChampion = true
			}
		}
		return sawChampion || s.State() == StateEnded
	}, 30*time.Second, 20*time.Millisecond)
}

func TestFullRemoteTournamentStartsOnUnanimousReady(t *testing.T) {
	d := NewDirectory(fastCfg(), nil, WithWaitWindow(time.Minute))
	a, b := newTestClient("a"), newTestClient("b")
	s, err := d.Join(a, ModeRemoteTournament, 2, nil)
	require.NoError(t, err)
	_, err = d.Join(b, ModeRemoteTournament, 2, nil)
	require.NoError(t, err)
	require.True(t, s.Full())

	s.MarkReady(a.ID)
	assert.Equal(t, StateWaiting, s.State())
	s.MarkReady(b.ID)
	require.Eventually(t, func() bool {
		return s.State() == StateRunning || s.State() == StateEnded
	}, 2*time.Second, 5*time.Millisecond)

	// A two-player bracket is a single final; someone must be crowned.
	champions := 0
	require.Eventually(t, func() bool {
		for _, ev := range drainEvents(a) {
			if _, ok := ev.(TournamentEndedEvent); ok {
				champions++
			}
		}
		return champions > 0
	}, 30*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, champions)
}
