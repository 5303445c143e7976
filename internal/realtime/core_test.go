package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) (*Core, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	b.addChannel("s1", "general", "alice", "bob")
	b.addChannel("s1", "voice1", "alice", "bob")
	b.addChannel("s2", "secret", "carol")
	return NewCore(b, b), b
}

func connect(core *Core, id string, uid domain.UserID) *fakeConn {
	c := newFakeConn(id, uid)
	core.Connect(c)
	c.reset()
	return c
}

func TestCore_ConnectSendsReadyAndJoinsUserRoom(t *testing.T) {
	core, _ := newTestCore(t)
	c := newFakeConn("c1", "alice")

	core.Connect(c)

	ready := c.ofType(EventReady)
	require.Len(t, ready, 1)
	require.Equal(t, domain.UserID("alice"), ready[0].Payload.(ReadyPayload).UserID)
	require.Equal(t, []string{UserRoom("alice")}, core.Hub().RoomsOf("c1"))
	require.True(t, core.Directory().Online("alice"))
}

func TestCore_JoinChannelChecksMembership(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")

	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	require.Len(t, alice.ofType(EventJoinedChannel), 1)

	err := core.JoinChannel(ctx, alice, "secret")
	require.ErrorIs(t, err, domain.ErrForbidden)

	err = core.JoinChannel(ctx, alice, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, core.JoinChannel(ctx, alice, " "), domain.ErrInvalidArgument)
	require.Equal(t, []ConnID{"a1"}, core.Hub().Members(ChannelRoom("general")))
	require.Empty(t, core.Hub().Members(ChannelRoom("secret")))
}

func TestCore_SendMessageForbiddenDoesNothing(t *testing.T) {
	core, b := newTestCore(t)
	ctx := context.Background()
	carol := connect(core, "c1", "carol")
	alice := connect(core, "a1", "alice")
	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	alice.reset()

	// room membership is not enough: carol subscribes without the check and still gets rejected
	core.Hub().Join(carol, ChannelRoom("general"))

	_, err := core.SendMessage(ctx, carol, "general", "hi", nil)
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Equal(t, 0, b.savedCount())
	require.Empty(t, alice.all())
	require.Empty(t, carol.all())
}

func TestCore_SendMessageBroadcastsToWholeRoom(t *testing.T) {
	core, b := newTestCore(t)
	ctx := context.Background()
	tab1 := connect(core, "a1", "alice")
	tab2 := connect(core, "a2", "alice")
	bob := connect(core, "b1", "bob")
	outsider := connect(core, "b2", "bob")

	for _, c := range []*fakeConn{tab1, tab2, bob} {
		require.NoError(t, core.JoinChannel(ctx, c, "general"))
		c.reset()
	}

	msg, err := core.SendMessage(ctx, tab1, "general", "hi", nil)
	require.NoError(t, err)
	require.Equal(t, 1, b.savedCount())

	for _, c := range []*fakeConn{tab1, tab2, bob} {
		got := c.ofType(EventNewMessage)
		require.Len(t, got, 1, "conn %s", c.ID())
		p := got[0].Payload.(MessagePayload)
		require.Equal(t, msg.ID, p.ID)
		require.Equal(t, "hi", p.Content)
		require.Equal(t, "alice", p.Username)
	}
	require.Empty(t, outsider.all())
}

func TestCore_SendMessageOrderingAndTimestamps(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	alice.reset()

	for _, text := range []string{"one", "two", "three"} {
		_, err := core.SendMessage(ctx, alice, "general", text, nil)
		require.NoError(t, err)
	}

	got := alice.ofType(EventNewMessage)
	require.Len(t, got, 3)
	prev := got[0].Payload.(MessagePayload)
	require.Equal(t, "one", prev.Content)
	for _, ev := range got[1:] {
		p := ev.Payload.(MessagePayload)
		require.True(t, p.CreatedAt.After(prev.CreatedAt))
		prev = p
	}
	require.Equal(t, "three", prev.Content)
}

func TestCore_SendMessageStorageFailureNoBroadcast(t *testing.T) {
	core, b := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	bob := connect(core, "b1", "bob")
	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	require.NoError(t, core.JoinChannel(ctx, bob, "general"))
	bob.reset()

	b.failSave = errors.New("disk on fire")
	_, err := core.SendMessage(ctx, alice, "general", "hi", nil)
	require.Error(t, err)
	require.Equal(t, domain.CodeInternal, domain.CodeOf(err))
	require.Empty(t, bob.all())
}

func TestCore_SendMessageEmpty(t *testing.T) {
	core, _ := newTestCore(t)
	alice := connect(core, "a1", "alice")

	_, err := core.SendMessage(context.Background(), alice, "general", "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCore_TypingExcludesSender(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	bob := connect(core, "b1", "bob")
	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	require.NoError(t, core.JoinChannel(ctx, bob, "general"))
	alice.reset()
	bob.reset()

	require.NoError(t, core.StartTyping(alice, "general"))
	require.NoError(t, core.StopTyping(alice, "general"))

	require.Empty(t, alice.all())
	evs := bob.all()
	require.Len(t, evs, 2)
	require.Equal(t, EventUserTyping, evs[0].Type)
	require.Equal(t, TypingPayload{UserID: "alice", Username: "alice", ChannelID: "general"}, evs[0].Payload)
	require.Equal(t, EventUserStoppedTyping, evs[1].Type)
	require.Equal(t, TypingPayload{UserID: "alice", ChannelID: "general"}, evs[1].Payload)

	require.ErrorIs(t, core.StartTyping(alice, ""), domain.ErrMissingChannel)
}

func TestCore_JoinCallScenario(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	u1 := connect(core, "c1", "alice")
	u2 := connect(core, "c2", "bob")
	require.NoError(t, core.JoinChannel(ctx, u1, "voice1"))
	require.NoError(t, core.JoinChannel(ctx, u2, "voice1"))
	u1.reset()
	u2.reset()

	prior, err := core.JoinCall(ctx, u1, "voice1")
	require.NoError(t, err)
	require.Empty(t, prior)
	require.Equal(t, []domain.UserID{"alice"}, core.CallUsers("voice1"))
	require.Empty(t, u1.ofType(EventUserJoinedCall))

	prior, err = core.JoinCall(ctx, u2, "voice1")
	require.NoError(t, err)
	require.Equal(t, []domain.UserID{"alice"}, prior)
	require.Equal(t, []domain.UserID{"alice", "bob"}, core.CallUsers("voice1"))

	joined := u1.ofType(EventUserJoinedCall)
	require.Len(t, joined, 1)
	require.Equal(t, domain.UserID("bob"), joined[0].Payload.(CallPresencePayload).UserID)

	// свой вход u2 не видит, только вход alice
	seen := u2.ofType(EventUserJoinedCall)
	require.Len(t, seen, 1)
	require.Equal(t, domain.UserID("alice"), seen[0].Payload.(CallPresencePayload).UserID)

	reply := u2.ofType(EventCallJoined)
	require.Len(t, reply, 1)
	require.Equal(t, []domain.UserID{"alice"}, reply[0].Payload.(CallParticipantsPayload).Participants)
}

func TestCore_JoinCallRequiresAccess(t *testing.T) {
	core, _ := newTestCore(t)
	carol := connect(core, "c1", "carol")

	_, err := core.JoinCall(context.Background(), carol, "voice1")
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.False(t, core.Calls().Active("voice1"))
}

func TestCore_JoinThenLeaveCallKeepsRoom(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	require.NoError(t, core.JoinChannel(ctx, alice, "voice1"))

	_, err := core.JoinCall(ctx, alice, "voice1")
	require.NoError(t, err)
	require.NoError(t, core.LeaveCall(alice, "voice1"))

	require.False(t, core.Calls().Active("voice1"))
	require.Equal(t, []ConnID{"a1"}, core.Hub().Members(ChannelRoom("voice1")))
	require.Len(t, alice.ofType(EventCallLeft), 1)

	// второй выход: no-op без рассылки
	alice.reset()
	require.NoError(t, core.LeaveCall(alice, "voice1"))
	require.Empty(t, alice.ofType(EventUserLeftCall))
}

func TestCore_CallStateGoesToServerRoom(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	bob := connect(core, "b1", "bob")
	require.NoError(t, core.JoinServer(ctx, bob, "s1"))
	bob.reset()

	_, err := core.JoinCall(ctx, alice, "voice1")
	require.NoError(t, err)

	st := bob.ofType(EventCallState)
	require.Len(t, st, 1)
	require.Equal(t, CallParticipantsPayload{
		ChannelID:    "voice1",
		Participants: []domain.UserID{"alice"},
	}, st[0].Payload)

	require.NoError(t, core.LeaveCall(alice, "voice1"))
	st = bob.ofType(EventCallState)
	require.Len(t, st, 2)
	require.Empty(t, st[1].Payload.(CallParticipantsPayload).Participants)
}

func TestCore_CallJoinedEchoedToOwnTabs(t *testing.T) {
	core, _ := newTestCore(t)
	tab1 := connect(core, "a1", "alice")
	tab2 := connect(core, "a2", "alice")

	_, err := core.JoinCall(context.Background(), tab1, "voice1")
	require.NoError(t, err)

	require.Len(t, tab1.ofType(EventCallJoined), 1)
	require.Len(t, tab2.ofType(EventCallJoined), 1)
}

func TestCore_RelayToAllTargetConns(t *testing.T) {
	core, _ := newTestCore(t)
	alice := connect(core, "a1", "alice")
	bob1 := connect(core, "b1", "bob")
	bob2 := connect(core, "b2", "bob")

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, core.RelayOffer(alice, "bob", "voice1", sdp))

	for _, c := range []*fakeConn{bob1, bob2} {
		got := c.ofType(EventCallOffer)
		require.Len(t, got, 1)
		require.Equal(t, SignalPayload{From: "alice", ChannelID: "voice1", Payload: sdp}, got[0].Payload)
	}
	require.Empty(t, alice.all())

	require.NoError(t, core.RelayAnswer(bob1, "alice", "voice1", sdp))
	require.Len(t, alice.ofType(EventCallAnswer), 1)
	require.NoError(t, core.RelayIceCandidate(bob1, "alice", "voice1", json.RawMessage(`{}`)))
	require.Len(t, alice.ofType(EventIceCandidate), 1)
}

func TestCore_RelayTrimsTarget(t *testing.T) {
	core, _ := newTestCore(t)
	alice := connect(core, "a1", "alice")
	bob := connect(core, "b1", "bob")

	require.NoError(t, core.RelayOffer(alice, " bob\t", "voice1", json.RawMessage(`{}`)))
	require.Len(t, bob.ofType(EventCallOffer), 1)

	require.ErrorIs(t, core.RelayOffer(alice, "   ", "voice1", json.RawMessage(`{}`)), domain.ErrMissingTarget)
}

func TestCore_RelayToOfflineUserIsSilent(t *testing.T) {
	core, _ := newTestCore(t)
	alice := connect(core, "a1", "alice")
	bob := connect(core, "b1", "bob")

	require.NoError(t, core.RelayOffer(alice, "nobody", "voice1", json.RawMessage(`{}`)))
	require.Empty(t, alice.all())
	require.Empty(t, bob.all())

	require.ErrorIs(t, core.RelayOffer(alice, "", "voice1", nil), domain.ErrMissingTarget)
	require.ErrorIs(t, core.Relay(alice, "bogus", "bob", "voice1", nil), domain.ErrUnknownEvent)
}

func TestCore_DisconnectLeavesCallOnlyWhereActive(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	alice := connect(core, "a1", "alice")
	watcherA := connect(core, "b1", "bob")
	watcherB := connect(core, "b2", "bob")

	require.NoError(t, core.JoinChannel(ctx, alice, "voice1"))
	require.NoError(t, core.JoinChannel(ctx, alice, "general"))
	require.NoError(t, core.JoinChannel(ctx, watcherA, "voice1"))
	require.NoError(t, core.JoinChannel(ctx, watcherB, "general"))
	_, err := core.JoinCall(ctx, alice, "voice1")
	require.NoError(t, err)
	watcherA.reset()
	watcherB.reset()

	core.Disconnect(alice)

	left := watcherA.ofType(EventUserLeftCall)
	require.Len(t, left, 1)
	require.Equal(t, domain.UserID("alice"), left[0].Payload.(CallPresencePayload).UserID)
	require.Empty(t, watcherB.ofType(EventUserLeftCall))

	require.Empty(t, core.Hub().RoomsOf(alice.ID()))
	require.False(t, core.Calls().Active("voice1"))
	require.False(t, core.Directory().Online("alice"))

	// повторный вызов ничего не рассылает
	core.Disconnect(alice)
	require.Len(t, watcherA.ofType(EventUserLeftCall), 1)
}

func TestCore_DisconnectKeepsUserWithOtherTabInCall(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	tab1 := connect(core, "a1", "alice")
	tab2 := connect(core, "a2", "alice")
	bob := connect(core, "b1", "bob")
	require.NoError(t, core.JoinChannel(ctx, bob, "voice1"))

	_, err := core.JoinCall(ctx, tab1, "voice1")
	require.NoError(t, err)
	_, err = core.JoinCall(ctx, tab2, "voice1")
	require.NoError(t, err)
	bob.reset()

	core.Disconnect(tab1)
	require.Empty(t, bob.ofType(EventUserLeftCall))
	require.Equal(t, []domain.UserID{"alice"}, core.CallUsers("voice1"))

	core.Disconnect(tab2)
	require.Len(t, bob.ofType(EventUserLeftCall), 1)
	require.Empty(t, core.CallUsers("voice1"))
}
