package social

import (
	"time"

	"messer/internal/model"
)

// MessageView is how a message appears on the wire.
type MessageView struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at"`
}

type FriendRequestView struct {
	FromUser  string    `json:"from_user"`
	ToUser    string    `json:"to_user"`
	CreatedAt time.Time `json:"created_at"`
}

type FriendView struct {
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
	Online   bool      `json:"online"`
}

// RemovedFriendView is the payload of removed_friend.
type RemovedFriendView struct {
	Username string `json:"username"`
}

type MessagesView struct {
	Sent     []MessageView `json:"sent"`
	Received []MessageView `json:"received"`
}

type FriendRequestsView struct {
	Sent     []FriendRequestView `json:"sent"`
	Received []FriendRequestView `json:"received"`
}

type FriendsView struct {
	Friends []FriendView `json:"friends"`
}

// NewMessageView expects m.Friendship with Owner and Friend loaded.
func NewMessageView(m *model.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		From:      m.Friendship.Owner.Username,
		To:        m.Friendship.Friend.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Read:      m.Read(),
		ReadAt:    m.ReadAt,
	}
}

// NewFriendRequestView expects FromUser and ToUser loaded.
func NewFriendRequestView(fr *model.FriendRequest) FriendRequestView {
	return FriendRequestView{
		FromUser:  fr.FromUser.Username,
		ToUser:    fr.ToUser.Username,
		CreatedAt: fr.CreatedAt,
	}
}

func messageViews(rows []model.Message) []MessageView {
	out := make([]MessageView, 0, len(rows))
	for i := range rows {
		out = append(out, NewMessageView(&rows[i]))
	}
	return out
}

func friendRequestViews(rows []model.FriendRequest) []FriendRequestView {
	out := make([]FriendRequestView, 0, len(rows))
	for i := range rows {
		out = append(out, NewFriendRequestView(&rows[i]))
	}
	return out
}
