package game

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davedevils/KartNChibi-sub000/protocol"
)

// stubValidator accepts everything unless told otherwise.
type stubValidator struct {
	rejectPosition bool
	rejectLap      bool
}

func (v *stubValidator) ValidatePosition(uint32, float64, float64, float64) bool {
	return !v.rejectPosition
}

func (v *stubValidator) ValidateLapTime(uint32, uint32, int64) bool {
	return !v.rejectLap
}

// instantTicker fires immediately on every receive, so the countdown runs
// without wall-clock delay.
type instantTicker struct{}

func (instantTicker) Create(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	close(ch)
	return ch, func() {}
}

// countingTicker records how often its stop function ran.
type countingTicker struct {
	mu      sync.Mutex
	stopped int
}

func (c *countingTicker) Create(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	close(ch)
	return ch, func() {
		c.mu.Lock()
		c.stopped++
		c.mu.Unlock()
	}
}

func (c *countingTicker) Stopped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func newRacingRace(t *testing.T, players int, validator RaceValidator) (*Race, []*fakeSender) {
	t.Helper()
	room := newTestRoom(8)
	senders := fillRoom(t, room, players)

	race := NewRace(room, validator, instantTicker{}, zerolog.Nop())
	race.StartCountdown(3)
	require.Eventually(t, func() bool { return race.State() == RaceRacing },
		time.Second, time.Millisecond, "countdown never finished")
	return race, senders
}

func TestRace_LoadPhaseGatesCountdown(t *testing.T) {
	t.Parallel()
	room := newTestRoom(8)
	senders := fillRoom(t, room, 3)

	race := NewRace(room, &stubValidator{}, instantTicker{}, zerolog.Nop())
	race.Begin()
	assert.Equal(t, RoomLoading, room.State())
	for _, s := range senders {
		require.NotNil(t, s.LastFrame())
		assert.Equal(t, protocol.CmdGameStart, s.LastFrame().Opcode())
	}

	race.MarkLoaded(1)
	race.MarkLoaded(2)
	assert.Equal(t, RaceNone, race.State(), "countdown must wait for every member")

	race.MarkLoaded(3)
	assert.Eventually(t, func() bool { return race.State() == RaceRacing },
		time.Second, time.Millisecond)
}

func TestRace_LeaveDuringLoadingDoesNotWedge(t *testing.T) {
	t.Parallel()
	room := newTestRoom(8)
	fillRoom(t, room, 2)

	race := NewRace(room, &stubValidator{}, instantTicker{}, zerolog.Nop())
	race.Begin()

	// member 2 bails before reporting loaded
	room.RemovePlayer(2)
	race.RemovePlayer(2)
	assert.Equal(t, RaceNone, race.State())

	race.MarkLoaded(1)
	assert.Eventually(t, func() bool { return race.State() == RaceRacing },
		time.Second, time.Millisecond, "remaining member must still reach the countdown")
	assert.Equal(t, RoomRacing, room.State())
}

func TestRace_LastHoldoutLeaveStartsCountdown(t *testing.T) {
	t.Parallel()
	room := newTestRoom(8)
	fillRoom(t, room, 3)

	race := NewRace(room, &stubValidator{}, instantTicker{}, zerolog.Nop())
	race.Begin()
	race.MarkLoaded(1)
	race.MarkLoaded(2)
	require.Equal(t, RaceNone, race.State())

	// the only member yet to load leaves, which unblocks everyone else
	room.RemovePlayer(3)
	race.RemovePlayer(3)
	require.Eventually(t, func() bool { return race.State() == RaceRacing },
		time.Second, time.Millisecond)

	_, ok := race.Player(3)
	assert.False(t, ok, "leaver must not race")
}

func TestRace_CountdownReleasesTicker(t *testing.T) {
	t.Parallel()
	room := newTestRoom(8)
	fillRoom(t, room, 2)

	tickers := &countingTicker{}
	race := NewRace(room, &stubValidator{}, tickers, zerolog.Nop())
	race.StartCountdown(3)

	require.Eventually(t, func() bool { return race.State() == RaceRacing },
		time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return tickers.Stopped() == 1 },
		time.Second, time.Millisecond, "countdown must release its ticker")
}

func TestRace_CountdownBroadcast(t *testing.T) {
	t.Parallel()
	_, senders := newRacingRace(t, 2, &stubValidator{})

	// each member saw 3 countdown ticks followed by the start signal
	assert.Eventually(t, func() bool {
		return senders[0].FrameCount() >= 4
	}, time.Second, time.Millisecond)

	var opcodes []uint16
	senders[0].mu.Lock()
	for _, f := range senders[0].frames {
		pkt, _ := protocol.Parse(f)
		opcodes = append(opcodes, pkt.Opcode())
	}
	senders[0].mu.Unlock()
	assert.Equal(t, []uint16{protocol.CmdCountdown, protocol.CmdCountdown, protocol.CmdCountdown, protocol.CmdRaceStart}, opcodes)
}

func TestRace_HandlePosition(t *testing.T) {
	t.Parallel()
	race, senders := newRacingRace(t, 3, &stubValidator{})

	require.True(t, race.HandlePosition(2, 10, 0, 5, 90))

	p, ok := race.Player(2)
	require.True(t, ok)
	assert.Equal(t, float32(10), p.X)
	assert.Equal(t, float32(5), p.Z)

	// rebroadcast to everyone but the mover
	last := senders[0].LastFrame()
	require.NotNil(t, last)
	assert.Equal(t, protocol.CmdPosition, last.Opcode())
	assert.Equal(t, uint32(2), last.ReadUint32())
	moverLast := senders[1].LastFrame()
	if moverLast != nil {
		assert.NotEqual(t, protocol.CmdPosition, moverLast.Opcode())
	}
}

func TestRace_RejectedPositionNotApplied(t *testing.T) {
	t.Parallel()
	validator := &stubValidator{}
	race, _ := newRacingRace(t, 2, validator)

	require.True(t, race.HandlePosition(1, 1, 1, 1, 0))
	validator.rejectPosition = true
	assert.False(t, race.HandlePosition(1, 999, 999, 999, 0))

	p, ok := race.Player(1)
	require.True(t, ok)
	assert.Equal(t, float32(1), p.X, "rejected sample must not overwrite state")
}

func TestRace_LapProgression(t *testing.T) {
	t.Parallel()
	race, _ := newRacingRace(t, 2, &stubValidator{})

	require.True(t, race.HandleLapComplete(1, 31000))
	p, _ := race.Player(1)
	assert.Equal(t, 2, p.Lap)
	assert.False(t, p.Finished)
	assert.Equal(t, int64(31000), p.TotalMs)

	require.True(t, race.HandleLapComplete(1, 30000))
	require.True(t, race.HandleLapComplete(1, 29000))
	p, _ = race.Player(1)
	assert.True(t, p.Finished)
	assert.Equal(t, int64(90000), p.TotalMs)

	assert.False(t, race.HandleLapComplete(1, 1000), "finished player laps are ignored")
}

func TestRace_RejectedLapNotRecorded(t *testing.T) {
	t.Parallel()
	validator := &stubValidator{rejectLap: true}
	race, _ := newRacingRace(t, 2, validator)

	assert.False(t, race.HandleLapComplete(1, 500))
	p, _ := race.Player(1)
	assert.Equal(t, 1, p.Lap)
	assert.Zero(t, p.TotalMs)
}

func TestRace_Standings(t *testing.T) {
	t.Parallel()
	race, _ := newRacingRace(t, 4, &stubValidator{})

	// player 1 finishes all three laps
	require.True(t, race.HandleLapComplete(1, 30000))
	require.True(t, race.HandleLapComplete(1, 30000))
	require.True(t, race.HandleLapComplete(1, 30000))

	// players 2 and 3 tie on total time, player 4 is slower
	require.True(t, race.HandleLapComplete(3, 30000))
	require.True(t, race.HandleLapComplete(3, 30000))
	require.True(t, race.HandleLapComplete(2, 30000))
	require.True(t, race.HandleLapComplete(2, 30000))
	require.True(t, race.HandleLapComplete(4, 70000))

	standings := race.EndRace()
	require.Len(t, standings, 4)

	assert.Equal(t, uint32(1), standings[0].SessionID, "finisher ranks above everyone")
	assert.True(t, standings[0].Finished)
	assert.Equal(t, 1, standings[0].Rank)

	assert.Equal(t, uint32(2), standings[1].SessionID, "tie broken by session id")
	assert.Equal(t, uint32(3), standings[2].SessionID)
	assert.Equal(t, uint32(4), standings[3].SessionID)
	for i, st := range standings {
		assert.Equal(t, i+1, st.Rank)
	}
}

func TestRace_EndsWhenAllFinish(t *testing.T) {
	t.Parallel()
	race, senders := newRacingRace(t, 2, &stubValidator{})

	ended := false
	race.OnEnd(func() { ended = true })

	for lap := 0; lap < 3; lap++ {
		require.True(t, race.HandleLapComplete(1, 30000))
	}
	for lap := 0; lap < 2; lap++ {
		require.True(t, race.HandleLapComplete(2, 30000))
	}
	assert.Equal(t, RaceRacing, race.State())
	assert.False(t, ended)

	require.True(t, race.HandleLapComplete(2, 30000))
	assert.Equal(t, RaceResults, race.State())
	assert.True(t, ended)

	last := senders[0].LastFrame()
	require.NotNil(t, last)
	assert.Equal(t, protocol.CmdRaceResults, last.Opcode())
}

func TestRace_EndsWhenLastUnfinishedLeaves(t *testing.T) {
	t.Parallel()
	race, _ := newRacingRace(t, 2, &stubValidator{})

	for lap := 0; lap < 3; lap++ {
		require.True(t, race.HandleLapComplete(1, 30000))
	}
	require.Equal(t, RaceRacing, race.State())

	race.RemovePlayer(2)
	assert.Equal(t, RaceResults, race.State())
}

func TestRace_BoostStateMachine(t *testing.T) {
	t.Parallel()
	race, _ := newRacingRace(t, 2, &stubValidator{})

	assert.False(t, race.HandleBoostStart(1), "no charge, no boost")

	race.ChargeBoost(1)
	p, _ := race.Player(1)
	assert.Zero(t, p.BoostLevel, "charge only climbs while drifting")

	race.HandleDriftStart(1)
	race.ChargeBoost(1)
	race.ChargeBoost(1)
	race.ChargeBoost(1)
	race.ChargeBoost(1)
	p, _ = race.Player(1)
	assert.Equal(t, 3, p.BoostLevel, "mini-turbo caps at level 3")

	race.HandleDriftEnd(1)
	p, _ = race.Player(1)
	assert.False(t, p.Drifting)
	assert.Equal(t, 3, p.BoostLevel, "charge survives the drift ending")

	require.True(t, race.HandleBoostStart(1))
	p, _ = race.Player(1)
	assert.True(t, p.Boosting)
	assert.False(t, race.HandleBoostStart(1), "already boosting")

	race.HandleDriftStart(1)
	p, _ = race.Player(1)
	assert.False(t, p.Drifting, "cannot drift while boosting")

	race.HandleBoostEnd(1)
	p, _ = race.Player(1)
	assert.False(t, p.Boosting)
	assert.Zero(t, p.BoostLevel, "boost consumes the whole charge")
}
