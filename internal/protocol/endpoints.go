package protocol

import (
	"context"
	"encoding/json"

	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/social"
)

// handlerFunc runs a decoded, validated request for caller.
type handlerFunc func(ctx context.Context, d *Dispatcher, caller *model.User, raw json.RawMessage) (any, []notify.Event, error)

// typed decodes raw into T and checks its validate tags before calling fn.
func typed[T any](fn func(ctx context.Context, d *Dispatcher, caller *model.User, in *T) (any, []notify.Event, error)) handlerFunc {
	return func(ctx context.Context, d *Dispatcher, caller *model.User, raw json.RawMessage) (any, []notify.Event, error) {
		in := new(T)
		if err := decodeContent(raw, in); err != nil {
			return nil, nil, err
		}
		return fn(ctx, d, caller, in)
	}
}

// Endpoint names.
const (
	SendMessage            = "send_message"
	SendFriendRequest      = "send_friend_request"
	RespondToFriendRequest = "respond_to_friend_request"
	WithdrawFriendRequest  = "withdraw_friend_request"
	RemoveFriend           = "remove_friend"
	GetMessages            = "get_messages"
	GetFriendRequests      = "get_friend_requests"
	GetFriends             = "get_friends"
	MarkMessagesRead       = "mark_messages_read"
)

var endpoints = map[string]handlerFunc{
	SendMessage:            typed(sendMessage),
	SendFriendRequest:      typed(sendFriendRequest),
	RespondToFriendRequest: typed(respondToFriendRequest),
	WithdrawFriendRequest:  typed(withdrawFriendRequest),
	RemoveFriend:           typed(removeFriend),
	GetMessages:            typed(getMessages),
	GetFriendRequests:      typed(getFriendRequests),
	GetFriends:             typed(getFriends),
	MarkMessagesRead:       typed(markMessagesRead),
}

// Endpoints lists the registered endpoint names.
func Endpoints() []string {
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	return names
}

type SendMessageContent struct {
	Friend  string `json:"friend" validate:"required,username"`
	Content string `json:"content" validate:"required"`
}

type UserRefContent struct {
	ToUser string `json:"to_user" validate:"required,username"`
}

type RespondContent struct {
	FromUser string `json:"from_user" validate:"required,username"`
	Accept   *bool  `json:"accept" validate:"required"`
}

type FriendRefContent struct {
	Friend string `json:"friend" validate:"required,username"`
}

type EmptyContent struct{}

type MarkReadResult struct {
	Marked int64 `json:"marked"`
}

func sendMessage(ctx context.Context, d *Dispatcher, caller *model.User, in *SendMessageContent) (any, []notify.Event, error) {
	content, err := d.social.ValidateContent(in.Content)
	if err != nil {
		return nil, nil, err
	}
	friend, err := d.resolveUser(ctx, "friend", in.Friend)
	if err != nil {
		return nil, nil, err
	}
	msg, events, err := d.social.SendMessage(ctx, caller, friend, content)
	if err != nil {
		return nil, nil, onReference(err, "friend")
	}
	return social.NewMessageView(msg), events, nil
}

func sendFriendRequest(ctx context.Context, d *Dispatcher, caller *model.User, in *UserRefContent) (any, []notify.Event, error) {
	to, err := d.resolveUser(ctx, "to_user", in.ToUser)
	if err != nil {
		return nil, nil, err
	}
	fr, events, err := d.social.SendFriendRequest(ctx, caller, to)
	if err != nil {
		return nil, nil, onReference(err, "to_user")
	}
	return social.NewFriendRequestView(fr), events, nil
}

func respondToFriendRequest(ctx context.Context, d *Dispatcher, caller *model.User, in *RespondContent) (any, []notify.Event, error) {
	requester, err := d.resolveUser(ctx, "from_user", in.FromUser)
	if err != nil {
		return nil, nil, err
	}
	f, events, err := d.social.RespondToFriendRequest(ctx, caller, requester, *in.Accept)
	if err != nil {
		return nil, nil, onReference(err, "from_user")
	}
	if f == nil {
		return nil, events, nil
	}
	return d.social.FriendView(f), events, nil
}

func withdrawFriendRequest(ctx context.Context, d *Dispatcher, caller *model.User, in *UserRefContent) (any, []notify.Event, error) {
	to, err := d.resolveUser(ctx, "to_user", in.ToUser)
	if err != nil {
		return nil, nil, err
	}
	fr, events, err := d.social.WithdrawFriendRequest(ctx, caller, to)
	if err != nil {
		return nil, nil, onReference(err, "to_user")
	}
	return social.NewFriendRequestView(fr), events, nil
}

func removeFriend(ctx context.Context, d *Dispatcher, caller *model.User, in *FriendRefContent) (any, []notify.Event, error) {
	friend, err := d.resolveUser(ctx, "friend", in.Friend)
	if err != nil {
		return nil, nil, err
	}
	_, events, err := d.social.RemoveFriend(ctx, caller, friend)
	if err != nil {
		return nil, nil, onReference(err, "friend")
	}
	return social.RemovedFriendView{Username: friend.Username}, events, nil
}

func markMessagesRead(ctx context.Context, d *Dispatcher, caller *model.User, in *FriendRefContent) (any, []notify.Event, error) {
	friend, err := d.resolveUser(ctx, "friend", in.Friend)
	if err != nil {
		return nil, nil, err
	}
	n, events, err := d.social.MarkMessagesRead(ctx, caller, friend)
	if err != nil {
		return nil, nil, onReference(err, "friend")
	}
	return MarkReadResult{Marked: n}, events, nil
}

func getMessages(ctx context.Context, d *Dispatcher, caller *model.User, _ *EmptyContent) (any, []notify.Event, error) {
	v, err := d.social.Messages(ctx, caller)
	return v, nil, err
}

func getFriendRequests(ctx context.Context, d *Dispatcher, caller *model.User, _ *EmptyContent) (any, []notify.Event, error) {
	v, err := d.social.FriendRequests(ctx, caller)
	return v, nil, err
}

func getFriends(ctx context.Context, d *Dispatcher, caller *model.User, _ *EmptyContent) (any, []notify.Event, error) {
	v, err := d.social.Friends(ctx, caller)
	return v, nil, err
}
