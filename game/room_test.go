package game

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davedevils/KartNChibi-sub000/protocol"
)

// fakeSender records every frame a room pushes at it.
type fakeSender struct {
	id uint32

	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSender) ID() uint32 { return f.id }

func (f *fakeSender) Send(data []byte) {
	f.mu.Lock()
	f.frames = append(f.frames, data)
	f.mu.Unlock()
}

func (f *fakeSender) FrameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSender) LastFrame() *protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	pkt, _ := protocol.Parse(f.frames[len(f.frames)-1])
	return pkt
}

func newTestRoom(maxPlayers int) *Room {
	return NewRoom(1, RoomSettings{Name: "test", MaxPlayers: maxPlayers, MapID: 7, Laps: 3}, zerolog.Nop())
}

func fillRoom(t *testing.T, r *Room, n int) []*fakeSender {
	t.Helper()
	senders := make([]*fakeSender, n)
	for i := 0; i < n; i++ {
		senders[i] = &fakeSender{id: uint32(i + 1)}
		require.True(t, r.AddPlayer(senders[i], 100+uint32(i), fmt.Sprintf("p%d", i+1), 0))
	}
	return senders
}

func TestRoom_AddPlayer(t *testing.T) {
	t.Parallel()

	t.Run("first player becomes host", func(t *testing.T) {
		r := newTestRoom(8)
		fillRoom(t, r, 2)
		assert.True(t, r.IsHost(1))
		assert.False(t, r.IsHost(2))
	})

	t.Run("lowest free slot", func(t *testing.T) {
		r := newTestRoom(8)
		fillRoom(t, r, 3)
		for id := uint32(1); id <= 3; id++ {
			p, ok := r.Player(id)
			require.True(t, ok)
			assert.Equal(t, int(id-1), p.Slot)
		}

		// slot 1 frees up and is handed to the next joiner
		r.RemovePlayer(2)
		joiner := &fakeSender{id: 9}
		require.True(t, r.AddPlayer(joiner, 109, "p9", 0))
		p, ok := r.Player(9)
		require.True(t, ok)
		assert.Equal(t, 1, p.Slot)
	})

	t.Run("full room rejects", func(t *testing.T) {
		r := newTestRoom(2)
		fillRoom(t, r, 2)
		assert.False(t, r.AddPlayer(&fakeSender{id: 3}, 103, "p3", 0))
		assert.Equal(t, 2, r.PlayerCount())
	})

	t.Run("duplicate rejects", func(t *testing.T) {
		r := newTestRoom(8)
		s := fillRoom(t, r, 1)[0]
		assert.False(t, r.AddPlayer(s, 100, "p1", 0))
	})

	t.Run("max players capped at eight", func(t *testing.T) {
		r := newTestRoom(20)
		fillRoom(t, r, 8)
		assert.False(t, r.AddPlayer(&fakeSender{id: 9}, 109, "p9", 0))
	})
}

func TestRoom_HostTransfer(t *testing.T) {
	t.Parallel()
	r := newTestRoom(8)
	fillRoom(t, r, 3)

	newHost, empty := r.RemovePlayer(1)
	assert.Equal(t, uint32(2), newHost, "oldest remaining member inherits the host")
	assert.False(t, empty)
	assert.True(t, r.IsHost(2))
	assert.False(t, r.IsHost(3))

	newHost, empty = r.RemovePlayer(3)
	assert.Zero(t, newHost, "host unchanged when a non-host leaves")
	assert.False(t, empty)

	newHost, empty = r.RemovePlayer(2)
	assert.Zero(t, newHost)
	assert.True(t, empty)
}

func TestRoom_CanStart(t *testing.T) {
	t.Parallel()

	t.Run("needs two players", func(t *testing.T) {
		r := newTestRoom(8)
		fillRoom(t, r, 1)
		assert.False(t, r.CanStart())
	})

	t.Run("flips when last non-host readies", func(t *testing.T) {
		r := newTestRoom(8)
		fillRoom(t, r, 4)
		assert.False(t, r.CanStart())

		r.SetPlayerReady(2, true)
		r.SetPlayerReady(3, true)
		assert.False(t, r.CanStart(), "one non-host still unready")

		r.SetPlayerReady(4, true)
		assert.True(t, r.CanStart(), "host readiness is not required")

		r.SetPlayerReady(3, false)
		assert.False(t, r.CanStart())
	})

	t.Run("tutorial starts solo", func(t *testing.T) {
		r := NewRoom(2, RoomSettings{Mode: ModeTutorial, MaxPlayers: 8}, zerolog.Nop())
		require.True(t, r.AddPlayer(&fakeSender{id: 1}, 101, "solo", 0))
		assert.True(t, r.CanStart())
	})

	t.Run("only while waiting", func(t *testing.T) {
		r := newTestRoom(8)
		fillRoom(t, r, 2)
		r.SetPlayerReady(2, true)
		require.True(t, r.CanStart())

		r.SetState(RoomRacing)
		assert.False(t, r.CanStart())
	})
}

func TestRoom_Broadcast(t *testing.T) {
	t.Parallel()
	r := newTestRoom(8)
	senders := fillRoom(t, r, 3)

	pkt := protocol.NewExtPacket(protocol.CmdChatRoom)
	pkt.WriteUint8(1)
	r.Broadcast(pkt)
	for _, s := range senders {
		assert.Equal(t, 1, s.FrameCount())
	}

	r.BroadcastExcept(pkt, 2)
	assert.Equal(t, 2, senders[0].FrameCount())
	assert.Equal(t, 1, senders[1].FrameCount(), "excluded member got the frame")
	assert.Equal(t, 2, senders[2].FrameCount())
}

func TestRoom_UpdateSettings(t *testing.T) {
	t.Parallel()
	r := newTestRoom(8)
	fillRoom(t, r, 3)

	assert.True(t, r.UpdateSettings(RoomSettings{Name: "new", MaxPlayers: 4, MapID: 9, Laps: 5}))
	assert.Equal(t, uint32(9), r.Settings().MapID)

	assert.False(t, r.UpdateSettings(RoomSettings{MaxPlayers: 2}), "cannot shrink below member count")

	r.SetState(RoomRacing)
	assert.False(t, r.UpdateSettings(RoomSettings{MaxPlayers: 8}), "settings locked outside waiting")
}
