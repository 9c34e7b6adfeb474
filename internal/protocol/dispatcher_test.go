package protocol

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"messer/internal/database/dbtest"
	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/social"
	"messer/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	d     *Dispatcher
	users map[string]*model.User
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	st := store.New(dbtest.Open(t))
	h := &harness{
		d:     NewDispatcher(social.NewService(st, 200), nil),
		users: make(map[string]*model.User),
	}
	for _, n := range names {
		u, err := st.CreateUser(context.Background(), n)
		require.NoError(t, err)
		h.users[n] = u
	}
	return h
}

// wire is a response as a client sees it.
type wire struct {
	Endpoint string          `json:"endpoint"`
	ID       json.RawMessage `json:"id"`
	Content  json.RawMessage `json:"content"`
	Errors   []struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Content json.RawMessage `json:"content"`
	} `json:"errors"`
}

func (h *harness) call(t *testing.T, caller, frame string) (wire, []notify.Event) {
	t.Helper()
	resp, events := h.d.Dispatch(context.Background(), h.users[caller], []byte(frame), nil)
	require.NotNil(t, resp)
	data, err := h.d.Encoder().EncodeResponse(resp)
	require.NoError(t, err)

	var w wire
	require.NoError(t, json.Unmarshal(data, &w))
	return w, events
}

func (h *harness) ok(t *testing.T, caller, frame string) (wire, []notify.Event) {
	t.Helper()
	w, events := h.call(t, caller, frame)
	require.Empty(t, w.Errors, "unexpected errors for %s", frame)
	return w, events
}

func singleError(t *testing.T, w wire) (code string, content json.RawMessage) {
	t.Helper()
	require.Len(t, w.Errors, 1)
	return w.Errors[0].Code, w.Errors[0].Content
}

func TestDispatchMalformedHasNoID(t *testing.T) {
	h := newHarness(t, "alice")
	for _, frame := range []string{`{{`, `[]`, `{"id":"x","endpoint":12}`} {
		w, events := h.call(t, "alice", frame)
		code, _ := singleError(t, w)
		assert.Equal(t, "MALFORMED", code)
		assert.Equal(t, "null", string(w.ID))
		assert.Empty(t, events)
	}
}

func TestDispatchUnknownEndpointEchoesID(t *testing.T) {
	h := newHarness(t, "alice")

	w, _ := h.call(t, "alice", `{"id":{"n":7},"endpoint":"launch_rockets"}`)
	code, _ := singleError(t, w)
	assert.Equal(t, "UNKNOWN_ENDPOINT", code)
	assert.JSONEq(t, `{"n":7}`, string(w.ID))
	assert.Equal(t, "launch_rockets", w.Endpoint)

	w, _ = h.call(t, "alice", `{"id":"no-endpoint"}`)
	code, _ = singleError(t, w)
	assert.Equal(t, "UNKNOWN_ENDPOINT", code)
	assert.Equal(t, `"no-endpoint"`, string(w.ID))
}

func TestDispatchValidation(t *testing.T) {
	h := newHarness(t, "alice")

	cases := map[string]struct {
		frame string
		field string
		rule  string
	}{
		"missing content field": {`{"id":1,"endpoint":"send_message","content":{"friend":"bob"}}`, "content", "required"},
		"missing content":       {`{"id":1,"endpoint":"send_message"}`, "friend", "required"},
		"wrong type":            {`{"id":1,"endpoint":"send_friend_request","content":{"to_user":5}}`, "to_user", "type"},
		"content not object":    {`{"id":1,"endpoint":"get_messages","content":[1]}`, "content", "type"},
		"missing accept":        {`{"id":1,"endpoint":"respond_to_friend_request","content":{"from_user":"bob"}}`, "accept", "required"},
		"bad username":          {`{"id":1,"endpoint":"remove_friend","content":{"friend":"has space"}}`, "friend", "username"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := h.call(t, "alice", tc.frame)
			code, content := singleError(t, w)
			assert.Equal(t, "VALIDATION/SCHEMA", code)
			assert.Equal(t, "1", string(w.ID))

			var fields []FieldError
			require.NoError(t, json.Unmarshal(content, &fields))
			require.NotEmpty(t, fields)
			assert.Equal(t, tc.field, fields[0].Field)
			assert.Equal(t, tc.rule, fields[0].Rule)
		})
	}
}

func TestDispatchNonObjectContentReportsObject(t *testing.T) {
	h := newHarness(t, "alice")
	w, _ := h.call(t, "alice", `{"id":1,"endpoint":"send_friend_request","content":"bob"}`)
	code, content := singleError(t, w)
	assert.Equal(t, "VALIDATION/SCHEMA", code)
	assert.JSONEq(t, `[{"field":"content","rule":"type","param":"object"}]`, string(content))
}

func TestDispatchMessageLengthCheckedBeforeLookup(t *testing.T) {
	h := newHarness(t, "alice", "bob")

	long := strings.Repeat("x", 500)
	w, _ := h.call(t, "alice", `{"id":1,"endpoint":"send_message","content":{"friend":"ghost","content":"`+long+`"}}`)
	code, content := singleError(t, w)
	assert.Equal(t, "VALIDATION/CONTENT_LENGTH", code)
	assert.JSONEq(t, `[{"field":"content","rule":"max","param":"200"}]`, string(content))

	w, _ = h.call(t, "alice", `{"id":2,"endpoint":"send_message","content":{"friend":"bob","content":"   "}}`)
	code, content = singleError(t, w)
	assert.Equal(t, "VALIDATION/CONTENT_LENGTH", code)
	assert.JSONEq(t, `[{"field":"content","rule":"min","param":"1"}]`, string(content))
}

type onlineSet map[string]bool

func (p onlineSet) Online(userID string) bool { return p[userID] }

func TestAcceptResponseCarriesPresence(t *testing.T) {
	st := store.New(dbtest.Open(t))
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob")
	require.NoError(t, err)

	h := &harness{
		d:     NewDispatcher(social.NewService(st, 200, social.WithPresence(onlineSet{alice.ID: true})), nil),
		users: map[string]*model.User{"alice": alice, "bob": bob},
	}
	h.ok(t, "alice", `{"id":1,"endpoint":"send_friend_request","content":{"to_user":"bob"}}`)
	w, events := h.ok(t, "bob", `{"id":2,"endpoint":"respond_to_friend_request","content":{"from_user":"alice","accept":true}}`)

	var view social.FriendView
	require.NoError(t, json.Unmarshal(w.Content, &view))
	assert.Equal(t, "alice", view.Username)
	assert.True(t, view.Online)

	for _, ev := range events {
		if ev.Recipient == bob.ID {
			assert.Equal(t, view.Online, ev.Content.(social.FriendView).Online)
		}
	}
}

func TestDispatchNullContentReadsAsEmpty(t *testing.T) {
	h := newHarness(t, "alice")
	w, _ := h.ok(t, "alice", `{"id":1,"endpoint":"get_friends","content":null}`)
	assert.JSONEq(t, `{"friends":[]}`, string(w.Content))
}

func TestDispatchReferenceErrorsNameTheField(t *testing.T) {
	h := newHarness(t, "alice", "bob")

	w, _ := h.call(t, "alice", `{"id":1,"endpoint":"send_message","content":{"friend":"ghost","content":"hi"}}`)
	code, content := singleError(t, w)
	assert.Equal(t, "NOT_FOUND/USER_NOT_FOUND", code)
	assert.JSONEq(t, `{"field":"friend"}`, string(content))

	w, events := h.call(t, "alice", `{"id":2,"endpoint":"send_message","content":{"friend":"bob","content":"hi"}}`)
	code, content = singleError(t, w)
	assert.Equal(t, "FORBIDDEN/NOT_FRIENDS", code)
	assert.JSONEq(t, `{"field":"friend"}`, string(content))
	assert.Empty(t, events)

	w, _ = h.ok(t, "alice", `{"id":3,"endpoint":"get_messages"}`)
	assert.JSONEq(t, `{"sent":[],"received":[]}`, string(w.Content))

	w, _ = h.call(t, "alice", `{"id":4,"endpoint":"withdraw_friend_request","content":{"to_user":"bob"}}`)
	code, content = singleError(t, w)
	assert.Equal(t, "NOT_FOUND/REQUEST_NOT_FOUND", code)
	assert.JSONEq(t, `{"field":"to_user"}`, string(content))
}

func TestDispatchConflictCodes(t *testing.T) {
	h := newHarness(t, "alice", "bob")

	w, _ := h.call(t, "alice", `{"id":1,"endpoint":"send_friend_request","content":{"to_user":"alice"}}`)
	code, _ := singleError(t, w)
	assert.Equal(t, "CONFLICT/SELF", code)

	h.ok(t, "alice", `{"id":2,"endpoint":"send_friend_request","content":{"to_user":"bob"}}`)
	w, _ = h.call(t, "alice", `{"id":3,"endpoint":"send_friend_request","content":{"to_user":"bob"}}`)
	code, _ = singleError(t, w)
	assert.Equal(t, "CONFLICT/ALREADY_REQUESTED", code)

	h.ok(t, "bob", `{"id":4,"endpoint":"respond_to_friend_request","content":{"from_user":"alice","accept":true}}`)
	w, _ = h.call(t, "alice", `{"id":5,"endpoint":"send_friend_request","content":{"to_user":"bob"}}`)
	code, _ = singleError(t, w)
	assert.Equal(t, "CONFLICT/ALREADY_FRIENDS", code)
}

type denyAll struct{}

func (denyAll) Allow() bool { return false }

func TestDispatchRateLimited(t *testing.T) {
	h := newHarness(t, "alice")
	resp, events := h.d.Dispatch(context.Background(), h.users["alice"], []byte(`{"id":9,"endpoint":"get_friends"}`), denyAll{})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "RATE_LIMITED", resp.Errors[0].Code)
	assert.Equal(t, "9", string(resp.ID))
	assert.Empty(t, events)
}

func TestFriendshipScenario(t *testing.T) {
	h := newHarness(t, "A", "B")
	a, b := h.users["A"], h.users["B"]

	w, events := h.ok(t, "A", `{"id":"1","endpoint":"send_friend_request","content":{"to_user":"B"}}`)
	assert.Equal(t, "send_friend_request", w.Endpoint)
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].Recipient)
	assert.Equal(t, notify.NewFriendRequest, events[0].Type)
	push, err := json.Marshal(h.d.Notification(events[0]))
	require.NoError(t, err)
	assert.Contains(t, string(push), `"from_user":"A"`)

	_, events = h.ok(t, "B", `{"id":"2","endpoint":"respond_to_friend_request","content":{"from_user":"A","accept":true}}`)
	require.Len(t, events, 2)
	got := map[string]string{}
	for _, ev := range events {
		assert.Equal(t, notify.NewFriend, ev.Type)
		got[ev.Recipient] = ev.Content.(social.FriendView).Username
	}
	assert.Equal(t, map[string]string{a.ID: "B", b.ID: "A"}, got)

	for caller, friend := range map[string]string{"A": "B", "B": "A"} {
		w, _ := h.ok(t, caller, `{"id":"3","endpoint":"get_friends"}`)
		var view social.FriendsView
		require.NoError(t, json.Unmarshal(w.Content, &view))
		require.Len(t, view.Friends, 1)
		assert.Equal(t, friend, view.Friends[0].Username)
	}

	_, events = h.ok(t, "A", `{"id":"4","endpoint":"send_message","content":{"friend":"B","content":"hello"}}`)
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].Recipient)
	assert.Equal(t, notify.ReceivedMessage, events[0].Type)

	w, _ = h.ok(t, "B", `{"id":"5","endpoint":"mark_messages_read","content":{"friend":"A"}}`)
	assert.JSONEq(t, `{"marked":1}`, string(w.Content))

	w, _ = h.ok(t, "B", `{"id":"6","endpoint":"get_messages"}`)
	var msgs social.MessagesView
	require.NoError(t, json.Unmarshal(w.Content, &msgs))
	require.Len(t, msgs.Received, 1)
	assert.Equal(t, "A", msgs.Received[0].From)
	assert.True(t, msgs.Received[0].Read)

	_, events = h.ok(t, "B", `{"id":"7","endpoint":"remove_friend","content":{"friend":"A"}}`)
	require.Len(t, events, 1)
	assert.Equal(t, a.ID, events[0].Recipient)
	assert.Equal(t, notify.RemovedFriend, events[0].Type)

	w, _ = h.call(t, "B", `{"id":"8","endpoint":"remove_friend","content":{"friend":"A"}}`)
	code, _ := singleError(t, w)
	assert.Equal(t, "NOT_FOUND/FRIENDSHIP_NOT_FOUND", code)
}

func TestRejectAndRequestProjection(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.ok(t, "A", `{"id":1,"endpoint":"send_friend_request","content":{"to_user":"B"}}`)
	w, _ := h.ok(t, "B", `{"id":2,"endpoint":"get_friend_requests"}`)
	var reqs social.FriendRequestsView
	require.NoError(t, json.Unmarshal(w.Content, &reqs))
	require.Len(t, reqs.Received, 1)
	assert.Equal(t, "A", reqs.Received[0].FromUser)
	assert.Equal(t, "B", reqs.Received[0].ToUser)

	w, events := h.ok(t, "B", `{"id":3,"endpoint":"respond_to_friend_request","content":{"from_user":"A","accept":false}}`)
	assert.Equal(t, "null", string(w.Content))
	assert.Empty(t, events)

	w, _ = h.ok(t, "A", `{"id":4,"endpoint":"get_friend_requests"}`)
	assert.JSONEq(t, `{"sent":[],"received":[]}`, string(w.Content))
}

func TestEndpointsTable(t *testing.T) {
	assert.ElementsMatch(t, []string{
		SendMessage, SendFriendRequest, RespondToFriendRequest, WithdrawFriendRequest,
		RemoveFriend, GetMessages, GetFriendRequests, GetFriends, MarkMessagesRead,
	}, Endpoints())
}
