// internal/handlers/router_test.go
package handlers

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorlive/parlor/internal/hub"
	"github.com/parlorlive/parlor/internal/protocol"
)

func newTestServer() *SocketServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSocketServer(logger, nil)
}

// connect registers a connection the way the ws handler does after a
// successful handshake.
func connect(srv *SocketServer, id, userID, username string) *hub.Conn {
	c := hub.NewConn(id, userID, username, srv.Logger)
	srv.Hub.Register(c)
	return c
}

func send(t *testing.T, srv *SocketServer, c *hub.Conn, event string, payload any) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	srv.HandleEvent(c, protocol.Envelope{Event: event, Data: raw})
}

// next pops one queued envelope; it fails if nothing was sent.
func next(t *testing.T, c *hub.Conn) protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.Out:
		return env
	default:
		t.Fatalf("conn %s: expected a queued event", c.ID)
		return protocol.Envelope{}
	}
}

func nextAs[T any](t *testing.T, c *hub.Conn, event string) T {
	t.Helper()
	env := next(t, c)
	require.Equal(t, event, env.Event, "conn %s", c.ID)
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func assertSilent(t *testing.T, c *hub.Conn) {
	t.Helper()
	select {
	case env := <-c.Out:
		t.Fatalf("conn %s: unexpected event %s", c.ID, env.Event)
	default:
	}
}

func drain(c *hub.Conn) {
	for {
		select {
		case <-c.Out:
		default:
			return
		}
	}
}

func assertError(t *testing.T, c *hub.Conn, code string) {
	t.Helper()
	p := nextAs[protocol.RoomErrorPayload](t, c, protocol.RoomError)
	assert.Equal(t, code, p.Code)
	assertSilent(t, c)
}

// createRoom drives room:create for conn and returns the room id, with both
// the requester's and the lobby echo drained from conn's queue.
func createRoom(t *testing.T, srv *SocketServer, c *hub.Conn, p protocol.RoomCreatePayload) string {
	t.Helper()
	send(t, srv, c, protocol.RoomCreate, p)
	joined := nextAs[protocol.RoomJoinedPayload](t, c, protocol.RoomJoined)
	return joined.RoomDetail.ID
}

func TestCreateJoinLeaveLifecycle(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	// Alice creates a room. She gets room:joined, Bob (still in the lobby)
	// gets lobby:room-added, Alice does not (she left the lobby first).
	send(t, srv, alice, protocol.RoomCreate, protocol.RoomCreatePayload{Name: "Alpha"})

	joined := nextAs[protocol.RoomJoinedPayload](t, alice, protocol.RoomJoined)
	roomID := joined.RoomDetail.ID
	require.NotEmpty(t, roomID)
	assert.Equal(t, "Alpha", joined.RoomDetail.Name)
	assert.Equal(t, "uA", joined.RoomDetail.HostUserID)
	assert.Equal(t, 4, joined.RoomDetail.MaxPlayers)
	require.Len(t, joined.RoomDetail.Players, 1)
	assert.Equal(t, "alice", joined.RoomDetail.Players[0].Username)
	assertSilent(t, alice)

	added := nextAs[protocol.RoomInfo](t, bob, protocol.LobbyRoomAdded)
	assert.Equal(t, roomID, added.ID)
	assert.Equal(t, 1, added.CurrentPlayers)
	assertSilent(t, bob)

	ch, _ := srv.Hub.Channel("cA")
	assert.Equal(t, roomID, ch)

	// Bob joins: both room members get room:joined with the detail; nobody is
	// left in the lobby so the lobby echo goes nowhere.
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})

	for _, c := range []*hub.Conn{alice, bob} {
		j := nextAs[protocol.RoomJoinedPayload](t, c, protocol.RoomJoined)
		assert.Equal(t, roomID, j.RoomDetail.ID)
		require.Len(t, j.RoomDetail.Players, 2)
		assert.Equal(t, "uB", j.RoomDetail.Players[1].UserID)
		assertSilent(t, c)
	}

	// Alice (the host) leaves: she gets a bare room:left, Bob gets the detail
	// showing himself promoted to host.
	send(t, srv, alice, protocol.RoomLeave, protocol.RoomLeavePayload{RoomID: roomID})

	left := nextAs[protocol.RoomLeftPayload](t, alice, protocol.RoomLeft)
	assert.Equal(t, roomID, left.RoomID)
	assert.Nil(t, left.RoomDetail)
	// Alice is back in the lobby, so she also sees the lobby echo.
	upd := nextAs[protocol.RoomInfo](t, alice, protocol.LobbyRoomUpdated)
	assert.Equal(t, "uB", upd.HostUserID)
	assertSilent(t, alice)

	bobLeft := nextAs[protocol.RoomLeftPayload](t, bob, protocol.RoomLeft)
	require.NotNil(t, bobLeft.RoomDetail)
	assert.Equal(t, "uB", bobLeft.RoomDetail.HostUserID)
	assert.Equal(t, "bob", bobLeft.RoomDetail.HostUsername)
	require.Len(t, bobLeft.RoomDetail.Players, 1)
	assertSilent(t, bob)

	// Bob leaves: the room empties out and is removed.
	send(t, srv, bob, protocol.RoomLeave, protocol.RoomLeavePayload{RoomID: roomID})

	bobLeft = nextAs[protocol.RoomLeftPayload](t, bob, protocol.RoomLeft)
	assert.Equal(t, roomID, bobLeft.RoomID)
	var removedID string
	for _, c := range []*hub.Conn{alice, bob} {
		env := next(t, c)
		require.Equal(t, protocol.LobbyRoomRemoved, env.Event)
		require.NoError(t, json.Unmarshal(env.Data, &removedID))
		assert.Equal(t, roomID, removedID)
		assertSilent(t, c)
	}

	assert.Empty(t, srv.Rooms.ListRooms())
}

func TestLobbyRoomsRequest(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	send(t, srv, bob, protocol.LobbyRooms, nil)
	infos := nextAs[[]protocol.RoomInfo](t, bob, protocol.LobbyRooms)
	assert.Empty(t, infos)

	createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	drain(bob)

	send(t, srv, bob, protocol.LobbyRooms, nil)
	infos = nextAs[[]protocol.RoomInfo](t, bob, protocol.LobbyRooms)
	require.Len(t, infos, 1)
	assert.Equal(t, "Alpha", infos[0].Name)
}

func TestCreateRejectsBlankName(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	send(t, srv, alice, protocol.RoomCreate, protocol.RoomCreatePayload{Name: "   "})
	assertError(t, alice, protocol.CodeInvalidPayload)

	assert.Empty(t, srv.Rooms.ListRooms())
	ch, _ := srv.Hub.Channel("cA")
	assert.Equal(t, hub.Lobby, ch)
}

func TestJoinUnknownRoom(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	send(t, srv, alice, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: "nope"})
	assertError(t, alice, protocol.CodeRoomNotFound)
}

func TestJoinPrivateRoomPassword(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	private := true
	pw := "sesame"
	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{
		Name: "Secret", IsPrivate: &private, Password: &pw,
	})
	drain(bob)

	wrong := "guess"
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID, Password: &wrong})
	assertError(t, bob, protocol.CodeWrongPassword)

	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	assertError(t, bob, protocol.CodeWrongPassword)

	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID, Password: &pw})
	j := nextAs[protocol.RoomJoinedPayload](t, bob, protocol.RoomJoined)
	assert.Len(t, j.RoomDetail.Players, 2)
}

func TestJoinFullRoom(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")
	carol := connect(srv, "cC", "uC", "carol")

	two := 2
	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Duo", MaxPlayers: &two})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	drain(alice)
	drain(bob)
	drain(carol)

	send(t, srv, carol, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	assertError(t, carol, protocol.CodeRoomFull)
	assertSilent(t, alice)
	assertSilent(t, bob)
}

func TestUpdateByHost(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	drain(alice)
	drain(bob)

	name := "  Beta  "
	pace := protocol.PaceFast
	send(t, srv, alice, protocol.RoomUpdate, protocol.RoomUpdatePayload{
		RoomID: roomID, Name: &name, Pace: &pace,
	})

	for _, c := range []*hub.Conn{alice, bob} {
		u := nextAs[protocol.RoomUpdatedPayload](t, c, protocol.RoomUpdated)
		assert.Equal(t, "Beta", u.RoomDetail.Name)
		assert.Equal(t, protocol.PaceFast, u.RoomDetail.Pace)
		assertSilent(t, c)
	}
}

func TestUpdateRejectedForNonHost(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	drain(alice)
	drain(bob)

	name := "Hijack"
	send(t, srv, bob, protocol.RoomUpdate, protocol.RoomUpdatePayload{RoomID: roomID, Name: &name})
	assertError(t, bob, protocol.CodeNotHost)
	assertSilent(t, alice)

	r, ok := srv.Rooms.GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Alpha", r.Name)
}

// A maxPlayers below the current member count rejects the whole update, even
// when the payload also carries valid fields.
func TestUpdateMaxPlayersRejectionIsAtomic(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")
	carol := connect(srv, "cC", "uC", "carol")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Trio"})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	send(t, srv, carol, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	for _, c := range []*hub.Conn{alice, bob, carol} {
		drain(c)
	}

	name := "Renamed"
	two := 2
	send(t, srv, alice, protocol.RoomUpdate, protocol.RoomUpdatePayload{
		RoomID: roomID, Name: &name, MaxPlayers: &two,
	})
	assertError(t, alice, protocol.CodeMaxPlayersTooLow)
	assertSilent(t, bob)
	assertSilent(t, carol)

	r, ok := srv.Rooms.GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Trio", r.Name)
	assert.Equal(t, 4, r.MaxPlayers)
}

// The floor check runs against the raw requested value; an oversized value
// passes the floor and is then clamped.
func TestUpdateMaxPlayersClampAfterFloor(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Solo"})
	drain(alice)

	ten := 10
	send(t, srv, alice, protocol.RoomUpdate, protocol.RoomUpdatePayload{RoomID: roomID, MaxPlayers: &ten})
	u := nextAs[protocol.RoomUpdatedPayload](t, alice, protocol.RoomUpdated)
	assert.Equal(t, 4, u.RoomDetail.MaxPlayers)
}

func TestUpdateClearsPasswordWithExplicitNull(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	private := true
	pw := "sesame"
	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{
		Name: "Secret", IsPrivate: &private, Password: &pw,
	})
	drain(bob)

	// Raw JSON so the password key is an explicit null.
	raw := []byte(`{"roomId":"` + roomID + `","isPrivate":false,"password":null}`)
	srv.HandleEvent(alice, protocol.Envelope{Event: protocol.RoomUpdate, Data: raw})
	drain(alice)
	drain(bob)

	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	j := nextAs[protocol.RoomJoinedPayload](t, bob, protocol.RoomJoined)
	assert.False(t, j.RoomDetail.IsPrivate)
	assert.Len(t, j.RoomDetail.Players, 2)
}

func TestUnknownEvent(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	srv.HandleEvent(alice, protocol.Envelope{Event: "room:dance"})
	assertError(t, alice, protocol.CodeInvalidPayload)
}

func TestMissingAndMalformedPayloads(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	srv.HandleEvent(alice, protocol.Envelope{Event: protocol.RoomJoin})
	assertError(t, alice, protocol.CodeInvalidPayload)

	srv.HandleEvent(alice, protocol.Envelope{Event: protocol.RoomJoin, Data: []byte(`{"roomId":7}`)})
	assertError(t, alice, protocol.CodeInvalidPayload)
}

func TestLeaveWithoutMembership(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")

	send(t, srv, alice, protocol.RoomLeave, protocol.RoomLeavePayload{RoomID: "nope"})
	assertError(t, alice, protocol.CodeRoomNotFound)
}

// Leaving a room the requester is not a member of must not touch their channel
// membership: the channel view stays consistent with the registry.
func TestLeaveOtherRoomKeepsMembership(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")
	carol := connect(srv, "cC", "uC", "carol")

	roomX := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "X"})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomX})
	for _, c := range []*hub.Conn{alice, bob, carol} {
		drain(c)
	}
	roomY := createRoom(t, srv, carol, protocol.RoomCreatePayload{Name: "Y"})
	for _, c := range []*hub.Conn{alice, bob, carol} {
		drain(c)
	}

	send(t, srv, bob, protocol.RoomLeave, protocol.RoomLeavePayload{RoomID: roomY})
	assertError(t, bob, protocol.CodeRoomNotFound)
	assertSilent(t, alice)
	assertSilent(t, carol)

	// Bob is still a registry member of X and still on its channel.
	x, ok := srv.Rooms.GetRoom(roomX)
	require.True(t, ok)
	assert.Len(t, x.Players, 2)
	y, ok := srv.Rooms.GetRoom(roomY)
	require.True(t, ok)
	assert.Len(t, y.Players, 1)
	ch, _ := srv.Hub.Channel("cB")
	assert.Equal(t, roomX, ch)

	// Room events for X still reach him.
	name := "X2"
	send(t, srv, alice, protocol.RoomUpdate, protocol.RoomUpdatePayload{RoomID: roomX, Name: &name})
	u := nextAs[protocol.RoomUpdatedPayload](t, bob, protocol.RoomUpdated)
	assert.Equal(t, "X2", u.RoomDetail.Name)
}

// A second connection carrying an already-present userId passes the join
// checks but is refused by the registry; the requester gets JOIN_FAILED and
// nothing mutates.
func TestJoinDuplicateUserRejected(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	alice2 := connect(srv, "cA2", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	for _, c := range []*hub.Conn{alice, alice2, bob} {
		drain(c)
	}

	send(t, srv, alice2, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	assertError(t, alice2, protocol.CodeJoinFailed)
	assertSilent(t, alice)
	assertSilent(t, bob)

	r, ok := srv.Rooms.GetRoom(roomID)
	require.True(t, ok)
	require.Len(t, r.Players, 1)
	assert.Equal(t, "cA", r.Players[0].ConnID)
	ch, _ := srv.Hub.Channel("cA2")
	assert.Equal(t, hub.Lobby, ch)
}

func TestDisconnectWithSurvivors(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")
	carol := connect(srv, "cC", "uC", "carol")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	send(t, srv, bob, protocol.RoomJoin, protocol.RoomJoinPayload{RoomID: roomID})
	for _, c := range []*hub.Conn{alice, bob, carol} {
		drain(c)
	}

	srv.HandleDisconnect(alice)

	// Bob is promoted and notified; Carol sees the lobby update.
	left := nextAs[protocol.RoomLeftPayload](t, bob, protocol.RoomLeft)
	require.NotNil(t, left.RoomDetail)
	assert.Equal(t, "uB", left.RoomDetail.HostUserID)
	assertSilent(t, bob)

	info := nextAs[protocol.RoomInfo](t, carol, protocol.LobbyRoomUpdated)
	assert.Equal(t, 1, info.CurrentPlayers)
	assertSilent(t, carol)

	_, ok := srv.Hub.Channel("cA")
	assert.False(t, ok)
}

func TestDisconnectOfLastPlayerRemovesRoom(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	roomID := createRoom(t, srv, alice, protocol.RoomCreatePayload{Name: "Alpha"})
	drain(bob)

	srv.HandleDisconnect(alice)

	var removed string
	env := next(t, bob)
	require.Equal(t, protocol.LobbyRoomRemoved, env.Event)
	require.NoError(t, json.Unmarshal(env.Data, &removed))
	assert.Equal(t, roomID, removed)

	assert.Empty(t, srv.Rooms.ListRooms())
	_, ok := srv.Hub.Channel("cA")
	assert.False(t, ok)
}

func TestDisconnectFromLobbyOnlyUnregisters(t *testing.T) {
	srv := newTestServer()
	alice := connect(srv, "cA", "uA", "alice")
	bob := connect(srv, "cB", "uB", "bob")

	srv.HandleDisconnect(alice)

	assertSilent(t, bob)
	_, ok := srv.Hub.Channel("cA")
	assert.False(t, ok)
}
