// Package social applies every mutation of the friendship graph. Each
// mutating operation runs under a per-pair lock inside one transaction and
// returns the events it raised; callers publish them after it returns.
package social

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"messer/internal/apperror"
	"messer/internal/logger"
	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/store"
)

// Presence reports whether a user has a live session.
type Presence interface {
	Online(userID string) bool
}

type Service struct {
	store      *store.Store
	locks      *pairLocker
	presence   Presence
	maxContent int
	now        func() time.Time
}

type Option func(*Service)

func WithPresence(p Presence) Option {
	return func(s *Service) { s.presence = p }
}

// WithClock overrides the time source used for read timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st *store.Store, maxContent int, opts ...Option) *Service {
	s := &Service{
		store:      st,
		locks:      newPairLocker(),
		maxContent: maxContent,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for reference lookups.
func (s *Service) Store() *store.Store {
	return s.store
}

var (
	errSelf             = apperror.New(apperror.KindConflict, apperror.CodeSelf, "cannot befriend yourself")
	errAlreadyFriends   = apperror.New(apperror.KindConflict, apperror.CodeAlreadyFriends, "already friends")
	errAlreadyRequested = apperror.New(apperror.KindConflict, apperror.CodeAlreadyRequested, "friend request already sent")
	errUserNotFound     = apperror.New(apperror.KindNotFound, apperror.CodeUserNotFound, "user not found")
	errRequestNotFound  = apperror.New(apperror.KindNotFound, apperror.CodeRequestNotFound, "friend request not found")
	errFriendshipGone   = apperror.New(apperror.KindNotFound, apperror.CodeFriendshipNotFound, "friendship not found")
	errNotFriends       = apperror.New(apperror.KindForbidden, apperror.CodeNotFriends, "that user is not in your friend list")
	errContentLength    = apperror.New(apperror.KindValidation, apperror.CodeContentLength, "content length out of bounds")
)

// internal classifies an unexpected store failure and logs its cause.
func internal(op string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	logger.Error("social operation failed", "op", op, "error", err)
	return apperror.Internal(err)
}

// inPair runs fn inside the pair lock and a transaction.
func (s *Service) inPair(ctx context.Context, a, b string, fn func(tx *store.Store) error) error {
	unlock := s.locks.Lock(a, b)
	defer unlock()
	return s.store.Transaction(ctx, fn)
}

// SendFriendRequest records a request from → to.
func (s *Service) SendFriendRequest(ctx context.Context, from, to *model.User) (*model.FriendRequest, []notify.Event, error) {
	if from.ID == to.ID {
		return nil, nil, errSelf
	}

	var fr *model.FriendRequest
	err := s.inPair(ctx, from.ID, to.ID, func(tx *store.Store) error {
		if _, err := tx.UserByID(ctx, to.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errUserNotFound
			}
			return err
		}

		friends, err := tx.FriendshipExists(ctx, from.ID, to.ID)
		if err != nil {
			return err
		}
		if friends {
			return errAlreadyFriends
		}

		_, err = tx.FriendRequest(ctx, from.ID, to.ID)
		switch {
		case err == nil:
			return errAlreadyRequested
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		fr, err = tx.CreateFriendRequest(ctx, from.ID, to.ID)
		if errors.Is(err, store.ErrDuplicate) {
			return errAlreadyRequested
		}
		return err
	})
	if err != nil {
		return nil, nil, internal("send_friend_request", err)
	}

	fr.FromUser, fr.ToUser = *from, *to
	events := []notify.Event{{
		Recipient: to.ID,
		Type:      notify.NewFriendRequest,
		Content:   NewFriendRequestView(fr),
	}}
	return fr, events, nil
}

// RespondToFriendRequest accepts or rejects the request requester → caller.
// Accepting yields the caller's directed friendship row. Any request caller
// had pending toward requester is dropped as well.
func (s *Service) RespondToFriendRequest(ctx context.Context, caller, requester *model.User, accept bool) (*model.Friendship, []notify.Event, error) {
	var (
		mine    *model.Friendship
		created bool
	)
	err := s.inPair(ctx, caller.ID, requester.ID, func(tx *store.Store) error {
		err := tx.DeleteFriendRequest(ctx, requester.ID, caller.ID)
		if errors.Is(err, store.ErrNotFound) {
			return errRequestNotFound
		}
		if err != nil {
			return err
		}
		if !accept {
			return nil
		}

		if err := tx.DeleteFriendRequest(ctx, caller.ID, requester.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		mine, _, created, err = tx.GetOrCreateFriendshipPair(ctx, caller.ID, requester.ID)
		return err
	})
	if err != nil {
		return nil, nil, internal("respond_to_friend_request", err)
	}
	if !accept {
		return nil, nil, nil
	}

	mine.Owner, mine.Friend = *caller, *requester
	if !created {
		return mine, nil, nil
	}
	events := []notify.Event{
		{Recipient: requester.ID, Type: notify.NewFriend, Content: s.friendView(caller, mine.CreatedAt)},
		{Recipient: caller.ID, Type: notify.NewFriend, Content: s.friendView(requester, mine.CreatedAt)},
	}
	return mine, events, nil
}

// WithdrawFriendRequest deletes the caller's pending request to to.
func (s *Service) WithdrawFriendRequest(ctx context.Context, caller, to *model.User) (*model.FriendRequest, []notify.Event, error) {
	var fr *model.FriendRequest
	err := s.inPair(ctx, caller.ID, to.ID, func(tx *store.Store) error {
		var err error
		fr, err = tx.FriendRequest(ctx, caller.ID, to.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errRequestNotFound
			}
			return err
		}
		return tx.DeleteFriendRequest(ctx, caller.ID, to.ID)
	})
	if err != nil {
		return nil, nil, internal("withdraw_friend_request", err)
	}
	fr.FromUser, fr.ToUser = *caller, *to
	return fr, nil, nil
}

// RemoveFriend deletes both rows of the caller's friendship with friend and
// every message on either of them.
func (s *Service) RemoveFriend(ctx context.Context, caller, friend *model.User) (*model.Friendship, []notify.Event, error) {
	var removed *model.Friendship
	err := s.inPair(ctx, caller.ID, friend.ID, func(tx *store.Store) error {
		var err error
		removed, err = tx.Friendship(ctx, caller.ID, friend.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errFriendshipGone
			}
			return err
		}
		err = tx.DeleteFriendshipPair(ctx, removed)
		if errors.Is(err, store.ErrNotFound) {
			return errFriendshipGone
		}
		return err
	})
	if err != nil {
		return nil, nil, internal("remove_friend", err)
	}

	removed.Owner, removed.Friend = *caller, *friend
	events := []notify.Event{{
		Recipient: friend.ID,
		Type:      notify.RemovedFriend,
		Content:   RemovedFriendView{Username: caller.Username},
	}}
	return removed, events, nil
}

// ValidateContent trims content and checks it against the length bound,
// counted in runes.
func (s *Service) ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return "", errContentLength.WithDetails([]apperror.FieldError{{Field: "content", Rule: "min", Param: "1"}})
	case utf8.RuneCountInString(content) > s.maxContent:
		return "", errContentLength.WithDetails([]apperror.FieldError{{Field: "content", Rule: "max", Param: strconv.Itoa(s.maxContent)}})
	}
	return content, nil
}

// SendMessage stores content on the caller's row toward friend.
func (s *Service) SendMessage(ctx context.Context, caller, friend *model.User, content string) (*model.Message, []notify.Event, error) {
	content, err := s.ValidateContent(content)
	if err != nil {
		return nil, nil, err
	}

	var msg *model.Message
	err = s.inPair(ctx, caller.ID, friend.ID, func(tx *store.Store) error {
		f, err := tx.Friendship(ctx, caller.ID, friend.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNotFriends
			}
			return err
		}
		msg, err = tx.CreateMessage(ctx, f, content)
		if err != nil {
			return err
		}
		msg.Friendship = *f
		return nil
	})
	if err != nil {
		return nil, nil, internal("send_message", err)
	}

	msg.Friendship.Owner, msg.Friendship.Friend = *caller, *friend
	events := []notify.Event{{
		Recipient: friend.ID,
		Type:      notify.ReceivedMessage,
		Content:   NewMessageView(msg),
	}}
	return msg, events, nil
}

// MarkMessagesRead marks everything the caller received from friend as read.
// Messages read earlier keep their timestamp.
func (s *Service) MarkMessagesRead(ctx context.Context, caller, friend *model.User) (int64, []notify.Event, error) {
	var marked int64
	err := s.inPair(ctx, caller.ID, friend.ID, func(tx *store.Store) error {
		theirs, err := tx.Friendship(ctx, friend.ID, caller.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errNotFriends
			}
			return err
		}
		marked, err = tx.MarkRead(ctx, theirs, s.now())
		return err
	})
	if err != nil {
		return 0, nil, internal("mark_messages_read", err)
	}
	return marked, nil, nil
}

func (s *Service) online(userID string) bool {
	return s.presence != nil && s.presence.Online(userID)
}

func (s *Service) friendView(friend *model.User, since time.Time) FriendView {
	return FriendView{Username: friend.Username, Since: since, Online: s.online(friend.ID)}
}

// FriendView describes the friend on friendship f, which must have Friend
// loaded.
func (s *Service) FriendView(f *model.Friendship) FriendView {
	return s.friendView(&f.Friend, f.CreatedAt)
}

// Friends lists the user's friends, oldest friendship first.
func (s *Service) Friends(ctx context.Context, user *model.User) (FriendsView, error) {
	rows, err := s.store.FriendsOf(ctx, user.ID)
	if err != nil {
		return FriendsView{}, internal("get_friends", err)
	}
	out := FriendsView{Friends: make([]FriendView, 0, len(rows))}
	for i := range rows {
		out.Friends = append(out.Friends, s.FriendView(&rows[i]))
	}
	return out, nil
}

func (s *Service) FriendRequests(ctx context.Context, user *model.User) (FriendRequestsView, error) {
	sent, received, err := s.store.FriendRequestsOf(ctx, user.ID)
	if err != nil {
		return FriendRequestsView{}, internal("get_friend_requests", err)
	}
	return FriendRequestsView{
		Sent:     friendRequestViews(sent),
		Received: friendRequestViews(received),
	}, nil
}

func (s *Service) Messages(ctx context.Context, user *model.User) (MessagesView, error) {
	sent, received, err := s.store.MessagesOf(ctx, user.ID)
	if err != nil {
		return MessagesView{}, internal("get_messages", err)
	}
	return MessagesView{
		Sent:     messageViews(sent),
		Received: messageViews(received),
	}, nil
}
