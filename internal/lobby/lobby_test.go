package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
	"github.com/DoyleJ11/tap-race-backend/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

func recvType(t *testing.T, ch <-chan types.ServerMessage, want string) types.ServerMessage {
	t.Helper()
	msg := recvMsg(t, ch, 500*time.Millisecond)
	require.Equal(t, want, msg.Type, "unexpected message %+v", msg)
	return msg
}

func recvUpdate(t *testing.T, ch <-chan types.ServerMessage) types.GameUpdate {
	t.Helper()
	msg := recvType(t, ch, types.OutGameUpdate)
	update, ok := msg.Data.(types.GameUpdate)
	require.True(t, ok)
	return update
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further messages possible
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, m)
	case <-time.After(within):
		// good: no message
	}
}

func state(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := l.State(ctx)
	require.NoError(t, err)
	return v
}

func newTestLobby(t *testing.T, required int, duration time.Duration) (*Lobby, fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(t0)
	l := NewLobby(ctx, engine.NewSession(required, duration),
		WithClock(clock),
		WithLogger(zaptest.NewLogger(t)))
	return l, clock
}

func connect(t *testing.T, l *Lobby, connID string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 1024)
	l.Inbox() <- Connect{ConnID: connID, Outbox: out}
	recvUpdate(t, out)
	return out
}

func send(l *Lobby, connID string, cmd engine.Command) {
	cmd.ConnID = connID
	l.Inbox() <- FromClient{Cmd: cmd}
}

func join(t *testing.T, l *Lobby, out chan types.ServerMessage, connID, key, name string) {
	t.Helper()
	send(l, connID, engine.Command{Type: engine.CmdJoin, PlayerKey: key, Name: name})
	res := recvType(t, out, types.OutPlayerJoinResult)
	require.True(t, res.Data.(types.JoinResult).OK)
	recvUpdate(t, out)
}

func TestLobby_ConnectSendsSnapshot(t *testing.T) {
	l, _ := newTestLobby(t, 2, 10*time.Second)

	out := make(chan types.ServerMessage, 2)
	l.Inbox() <- Connect{ConnID: "c1", Outbox: out}

	update := recvUpdate(t, out)
	assert.Equal(t, engine.StatusLobby, update.State)
	assert.Equal(t, 2, update.RequiredPlayers)
	assert.Equal(t, int64(10000), update.DurationMs)
	assert.Nil(t, update.StartedAt)
	assert.False(t, update.HasHost)
	assert.Empty(t, update.Players)
}

func TestLobby_HostClaimRepliesThenBroadcasts(t *testing.T) {
	l, _ := newTestLobby(t, 2, 10*time.Second)
	host := connect(t, l, "h")
	other := connect(t, l, "o")

	send(l, "h", engine.Command{Type: engine.CmdClaimHost})

	claimed := recvType(t, host, types.OutHostClaimed)
	assert.Equal(t, types.HostClaimed{OK: true}, claimed.Data)
	assert.True(t, recvUpdate(t, host).HasHost)

	// The claim reply is for the claimant only.
	assert.True(t, recvUpdate(t, other).HasHost)
}

func TestLobby_JoinRejectionGoesToJoinerOnly(t *testing.T) {
	l, _ := newTestLobby(t, 2, 10*time.Second)
	a := connect(t, l, "a")
	b := connect(t, l, "b")

	send(l, "a", engine.Command{Type: engine.CmdJoin, Name: "   "})
	res := recvType(t, a, types.OutPlayerJoinResult)
	assert.Equal(t, types.JoinResult{OK: false, Reason: "InvalidName"}, res.Data)

	recvNoMsg(t, a, 50*time.Millisecond)
	recvNoMsg(t, b, 50*time.Millisecond)
}

func TestLobby_StartWithoutEnoughPlayersReportsToHost(t *testing.T) {
	l, _ := newTestLobby(t, 3, 10*time.Second)
	h := connect(t, l, "h")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, h, types.OutHostClaimed)
	recvUpdate(t, h)
	join(t, l, h, "h", "A", "alice")

	send(l, "h", engine.Command{Type: engine.CmdStartGame})
	msg := recvType(t, h, types.OutHostError)
	assert.Contains(t, msg.Data.(types.HostError).Message, "need 3 players, have 1")
	recvNoMsg(t, h, 50*time.Millisecond)

	assert.Equal(t, engine.StatusLobby, state(t, l).Session.Status)
}

func TestLobby_NonHostActionsAreSilent(t *testing.T) {
	l, _ := newTestLobby(t, 2, 10*time.Second)
	x := connect(t, l, "x")

	send(l, "x", engine.Command{Type: engine.CmdSetPlayers, RequiredPlayers: 5})
	send(l, "x", engine.Command{Type: engine.CmdStartGame})
	send(l, "x", engine.Command{Type: engine.CmdResetToLobby})

	recvNoMsg(t, x, 50*time.Millisecond)
	assert.Equal(t, 2, state(t, l).Session.RequiredPlayers)
}

// Two players race; A taps to 100 and wins before the round timer.
func TestLobby_FullRound_TapToWin(t *testing.T) {
	l, clock := newTestLobby(t, 2, 30*time.Second)
	a := connect(t, l, "ca")
	b := connect(t, l, "cb")

	send(l, "ca", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, a, types.OutHostClaimed)
	recvUpdate(t, a)
	recvUpdate(t, b)

	join(t, l, a, "ca", "A", "alice")
	recvUpdate(t, b)
	join(t, l, b, "cb", "B", "bob")
	recvUpdate(t, a)

	send(l, "ca", engine.Command{Type: engine.CmdStartGame})
	for _, out := range []chan types.ServerMessage{a, b} {
		cd := recvType(t, out, types.OutGameCountdown)
		assert.Equal(t, types.Countdown{Seconds: 3}, cd.Data)
		assert.Equal(t, engine.StatusCountdown, recvUpdate(t, out).State)
	}

	clock.Advance(engine.CountdownDelay)
	for _, out := range []chan types.ServerMessage{a, b} {
		started := recvType(t, out, types.OutGameStarted)
		assert.Equal(t, types.GameStarted{
			StartedAt:  t0.Add(engine.CountdownDelay).UnixMilli(),
			DurationMs: 30000,
		}, started.Data)
		assert.Equal(t, engine.StatusRunning, recvUpdate(t, out).State)
	}

	var ended types.GameEnded
	for i := 0; i < 500; i++ {
		clock.Advance(60 * time.Millisecond)
		send(l, "ca", engine.Command{Type: engine.CmdTap})

		progress := recvType(t, b, types.OutGameProgress)
		p := progress.Data.(types.Progress)
		assert.Equal(t, "ca", p.ID)
		recvType(t, a, types.OutGameProgress)

		if p.Progress >= engine.MaxProgress {
			ended = recvType(t, a, types.OutGameEnded).Data.(types.GameEnded)
			recvType(t, b, types.OutGameEnded)
			assert.Equal(t, engine.StatusEnded, recvUpdate(t, a).State)
			assert.Equal(t, engine.StatusEnded, recvUpdate(t, b).State)
			break
		}
	}

	require.NotNil(t, ended.Winner)
	assert.Equal(t, "A", ended.Winner.Key)
	require.Len(t, ended.Leaderboard, 2)
	assert.Equal(t, "A", ended.Leaderboard[0].Key)
	assert.Equal(t, "B", ended.Leaderboard[1].Key)

	v := state(t, l)
	assert.False(t, v.TimersArmed)

	// Running well past the round length must not end the game again.
	clock.Advance(time.Minute)
	recvNoMsg(t, a, 100*time.Millisecond)
	recvNoMsg(t, b, 10*time.Millisecond)
}

func TestLobby_RoundTimerEndsGame(t *testing.T) {
	l, clock := newTestLobby(t, 2, 5*time.Second)
	a := connect(t, l, "ca")
	send(l, "ca", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, a, types.OutHostClaimed)
	recvUpdate(t, a)
	join(t, l, a, "ca", "A", "alice")
	send(l, "cb", engine.Command{Type: engine.CmdJoin, PlayerKey: "B", Name: "bob"})
	recvUpdate(t, a)

	send(l, "ca", engine.Command{Type: engine.CmdStartGame})
	recvType(t, a, types.OutGameCountdown)
	recvUpdate(t, a)
	clock.Advance(engine.CountdownDelay)
	recvType(t, a, types.OutGameStarted)
	recvUpdate(t, a)

	// The boundary itself is still inside the round.
	clock.Advance(5 * time.Second)
	recvNoMsg(t, a, 50*time.Millisecond)

	clock.Advance(engine.EndTimerSlack)
	ended := recvType(t, a, types.OutGameEnded).Data.(types.GameEnded)
	assert.Len(t, ended.Leaderboard, 2)
	assert.Equal(t, engine.StatusEnded, recvUpdate(t, a).State)
}

func TestLobby_ResetDuringCountdownCancelsTimers(t *testing.T) {
	l, clock := newTestLobby(t, 2, 5*time.Second)
	h := connect(t, l, "h")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, h, types.OutHostClaimed)
	recvUpdate(t, h)
	send(l, "p1", engine.Command{Type: engine.CmdJoin, PlayerKey: "A", Name: "a"})
	recvUpdate(t, h)
	send(l, "p2", engine.Command{Type: engine.CmdJoin, PlayerKey: "B", Name: "b"})
	recvUpdate(t, h)

	send(l, "h", engine.Command{Type: engine.CmdStartGame})
	recvType(t, h, types.OutGameCountdown)
	recvUpdate(t, h)
	assert.True(t, state(t, l).TimersArmed)

	before := state(t, l).Generation

	send(l, "h", engine.Command{Type: engine.CmdResetToLobby})
	recvType(t, h, types.OutGameReset)
	update := recvUpdate(t, h)
	assert.Equal(t, engine.StatusLobby, update.State)

	v := state(t, l)
	assert.False(t, v.TimersArmed)
	assert.Greater(t, v.Generation, before)

	clock.Advance(engine.CountdownDelay + time.Second)
	recvNoMsg(t, h, 100*time.Millisecond)
	assert.Equal(t, engine.StatusLobby, state(t, l).Session.Status)
}

func TestLobby_StaleTimerFireKeepsNewTimerArmed(t *testing.T) {
	l, clock := newTestLobby(t, 2, 5*time.Second)
	h := connect(t, l, "h")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, h, types.OutHostClaimed)
	recvUpdate(t, h)
	send(l, "p1", engine.Command{Type: engine.CmdJoin, PlayerKey: "A", Name: "a"})
	recvUpdate(t, h)
	send(l, "p2", engine.Command{Type: engine.CmdJoin, PlayerKey: "B", Name: "b"})
	recvUpdate(t, h)

	send(l, "h", engine.Command{Type: engine.CmdStartGame})
	recvType(t, h, types.OutGameCountdown)
	recvUpdate(t, h)
	first := state(t, l).Generation

	send(l, "h", engine.Command{Type: engine.CmdResetToLobby})
	recvType(t, h, types.OutGameReset)
	recvUpdate(t, h)
	send(l, "h", engine.Command{Type: engine.CmdStartGame})
	recvType(t, h, types.OutGameCountdown)
	recvUpdate(t, h)

	v := state(t, l)
	require.Greater(t, v.Generation, first)
	require.True(t, v.TimersArmed)

	// The first countdown's fire arrives after the second was armed.
	l.Inbox() <- timerFired{Cmd: engine.Command{Type: engine.CmdBeginRound, Generation: first}}
	recvNoMsg(t, h, 50*time.Millisecond)

	v = state(t, l)
	assert.True(t, v.TimersArmed)
	assert.Equal(t, engine.StatusCountdown, v.Session.Status)

	send(l, "h", engine.Command{Type: engine.CmdResetToLobby})
	recvType(t, h, types.OutGameReset)
	recvUpdate(t, h)
	assert.False(t, state(t, l).TimersArmed)

	clock.Advance(engine.CountdownDelay + time.Second)
	recvNoMsg(t, h, 100*time.Millisecond)
	assert.Equal(t, engine.StatusLobby, state(t, l).Session.Status)
}

func TestLobby_DisconnectReleasesHostAndKeepsPlayer(t *testing.T) {
	l, _ := newTestLobby(t, 2, 5*time.Second)
	h := connect(t, l, "h")
	watcher := connect(t, l, "w")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, h, types.OutHostClaimed)
	recvUpdate(t, h)
	recvUpdate(t, watcher)
	join(t, l, h, "h", "A", "alice")
	recvUpdate(t, watcher)

	l.Inbox() <- Disconnect{ConnID: "h"}

	recvType(t, watcher, types.OutHostLeft)
	update := recvUpdate(t, watcher)
	assert.False(t, update.HasHost)
	require.Len(t, update.Players, 1)
	assert.False(t, update.Players[0].Connected)
	assert.Equal(t, "A", update.Players[0].Key)
	assert.Equal(t, 1, state(t, l).NumClients)
}

func TestLobby_JoinWhileRunningRejected(t *testing.T) {
	l, clock := newTestLobby(t, 2, 30*time.Second)
	h := connect(t, l, "h")
	c := connect(t, l, "c")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	recvType(t, h, types.OutHostClaimed)
	send(l, "a", engine.Command{Type: engine.CmdJoin, PlayerKey: "A", Name: "a"})
	send(l, "b", engine.Command{Type: engine.CmdJoin, PlayerKey: "B", Name: "b"})
	send(l, "h", engine.Command{Type: engine.CmdStartGame})
	// claim, join A, join B
	for i := 0; i < 3; i++ {
		recvUpdate(t, c)
	}
	recvType(t, c, types.OutGameCountdown)
	recvUpdate(t, c)
	clock.Advance(engine.CountdownDelay)
	recvType(t, c, types.OutGameStarted)
	recvUpdate(t, c)

	send(l, "c", engine.Command{Type: engine.CmdJoin, PlayerKey: "C", Name: "carol"})
	res := recvType(t, c, types.OutPlayerJoinResult)
	assert.Equal(t, types.JoinResult{OK: false, Reason: "SessionInProgress"}, res.Data)

	assert.Equal(t, 2, state(t, l).Session.JoinedPlayers)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l, _ := newTestLobby(t, 2, 5*time.Second)

	slow := make(chan types.ServerMessage, 1)
	l.Inbox() <- Connect{ConnID: "slow", Outbox: slow}
	connect(t, l, "h")

	send(l, "h", engine.Command{Type: engine.CmdClaimHost})

	// The claim's broadcast overflows the slow outbox, which still holds
	// its connect snapshot.
	assert.Equal(t, 1, state(t, l).NumClients)
	recvUpdate(t, slow)
	recvNoMsg(t, slow, 50*time.Millisecond)
}

func TestLobby_Shutdown_ClosesOutboxes_NoTimerFire(t *testing.T) {
	l, clock := newTestLobby(t, 2, 5*time.Second)
	h := connect(t, l, "h")
	send(l, "h", engine.Command{Type: engine.CmdClaimHost})
	send(l, "a", engine.Command{Type: engine.CmdJoin, PlayerKey: "A", Name: "a"})
	send(l, "b", engine.Command{Type: engine.CmdJoin, PlayerKey: "B", Name: "b"})
	send(l, "h", engine.Command{Type: engine.CmdStartGame})

	l.Inbox() <- Shutdown{}
	<-l.Done()
	clock.Advance(engine.CountdownDelay)

	for {
		select {
		case m, ok := <-h:
			if !ok {
				return
			}
			require.NotEqual(t, types.OutGameStarted, m.Type)
		case <-time.After(time.Second):
			t.Fatalf("outbox never closed")
		}
	}
}
