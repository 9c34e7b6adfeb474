// Package store is the persistence layer of the social graph. It owns the
// Friendship, FriendRequest and Message rows; callers that need the pair
// invariants go through the social package instead of mutating rows here.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messer/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert collides with a unique index.
var ErrDuplicate = errors.New("duplicate record")

// Store wraps a gorm handle. Inside Transaction the handle is the tx.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transactional Store. Any error rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// ---- users ----

// CreateUser inserts a user with a fresh ID.
func (s *Store) CreateUser(ctx context.Context, username string) (*model.User, error) {
	user := &model.User{
		ID:       uuid.New().String(),
		Username: username,
	}
	if err := s.conn(ctx).Create(user).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ---- friendships ----

// Friendship returns the row owned by ownerID pointing at friendID.
func (s *Store) Friendship(ctx context.Context, ownerID, friendID string) (*model.Friendship, error) {
	var f model.Friendship
	err := s.conn(ctx).
		Where("owner_id = ? AND friend_id = ?", ownerID, friendID).
		First(&f).Error
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

// FriendshipExists reports whether a row links a and b in either direction.
func (s *Store) FriendshipExists(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.Friendship{}).
		Where("(owner_id = ? AND friend_id = ?) OR (owner_id = ? AND friend_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetOrCreateFriendshipPair returns the (a→b, b→a) rows, inserting whichever
// half is missing. Call it inside Transaction so the pair lands atomically.
func (s *Store) GetOrCreateFriendshipPair(ctx context.Context, a, b string) (*model.Friendship, *model.Friendship, bool, error) {
	forward, err := s.Friendship(ctx, a, b)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, false, err
	}
	backward, err := s.Friendship(ctx, b, a)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, false, err
	}
	if forward != nil && backward != nil {
		return forward, backward, false, nil
	}

	now := time.Now().UTC()
	var missing []*model.Friendship
	if forward == nil {
		forward = &model.Friendship{ID: uuid.New().String(), OwnerID: a, FriendID: b, CreatedAt: now}
		missing = append(missing, forward)
	}
	if backward == nil {
		backward = &model.Friendship{ID: uuid.New().String(), OwnerID: b, FriendID: a, CreatedAt: now}
		missing = append(missing, backward)
	}
	forward.ReverseID = backward.ID
	backward.ReverseID = forward.ID

	for _, f := range missing {
		if err := s.conn(ctx).Create(f).Error; err != nil {
			return nil, nil, false, translate(err)
		}
	}
	// a surviving half gets relinked to its new twin
	for _, f := range []*model.Friendship{forward, backward} {
		err := s.conn(ctx).Model(&model.Friendship{}).
			Where("id = ?", f.ID).
			Update("reverse_id", f.ReverseID).Error
		if err != nil {
			return nil, nil, false, err
		}
	}
	return forward, backward, true, nil
}

// DeleteFriendshipPair removes f, its twin and every message attached to
// either row. Call it inside Transaction.
func (s *Store) DeleteFriendshipPair(ctx context.Context, f *model.Friendship) error {
	ids := []string{f.ID}
	twin, err := s.Friendship(ctx, f.FriendID, f.OwnerID)
	switch {
	case err == nil:
		ids = append(ids, twin.ID)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if err := s.conn(ctx).Where("friendship_id IN ?", ids).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res := s.conn(ctx).Where("id IN ?", ids).Delete(&model.Friendship{})
	if res.Error != nil {
		return fmt.Errorf("delete friendships: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FriendsOf lists the rows owned by userID with the friend preloaded.
func (s *Store) FriendsOf(ctx context.Context, userID string) ([]model.Friendship, error) {
	var rows []model.Friendship
	err := s.conn(ctx).
		Preload("Friend").
		Where("owner_id = ?", userID).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}

// ---- friend requests ----

func (s *Store) FriendRequest(ctx context.Context, fromID, toID string) (*model.FriendRequest, error) {
	var fr model.FriendRequest
	err := s.conn(ctx).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		First(&fr).Error
	if err != nil {
		return nil, translate(err)
	}
	return &fr, nil
}

func (s *Store) CreateFriendRequest(ctx context.Context, fromID, toID string) (*model.FriendRequest, error) {
	fr := &model.FriendRequest{
		ID:         uuid.New().String(),
		FromUserID: fromID,
		ToUserID:   toID,
	}
	if err := s.conn(ctx).Create(fr).Error; err != nil {
		return nil, translate(err)
	}
	return fr, nil
}

// DeleteFriendRequest removes the fromID→toID request. ErrNotFound when absent.
func (s *Store) DeleteFriendRequest(ctx context.Context, fromID, toID string) error {
	res := s.conn(ctx).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		Delete(&model.FriendRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FriendRequestsOf returns the requests userID sent and received.
func (s *Store) FriendRequestsOf(ctx context.Context, userID string) (sent, received []model.FriendRequest, err error) {
	err = s.conn(ctx).
		Preload("FromUser").Preload("ToUser").
		Where("from_user_id = ?", userID).
		Order("created_at asc").
		Find(&sent).Error
	if err != nil {
		return nil, nil, err
	}
	err = s.conn(ctx).
		Preload("FromUser").Preload("ToUser").
		Where("to_user_id = ?", userID).
		Order("created_at asc").
		Find(&received).Error
	if err != nil {
		return nil, nil, err
	}
	return sent, received, nil
}

// ---- messages ----

// CreateMessage stores content on friendship f.
func (s *Store) CreateMessage(ctx context.Context, f *model.Friendship, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:           uuid.New().String(),
		FriendshipID: f.ID,
		Content:      content,
	}
	if err := s.conn(ctx).Create(msg).Error; err != nil {
		return nil, translate(err)
	}
	return msg, nil
}

// MessagesOf returns the messages userID sent and received, oldest first,
// with both ends of the friendship preloaded.
func (s *Store) MessagesOf(ctx context.Context, userID string) (sent, received []model.Message, err error) {
	base := func() *gorm.DB {
		return s.conn(ctx).
			Preload("Friendship.Owner").Preload("Friendship.Friend").
			Joins("JOIN friendships ON friendships.id = messages.friendship_id").
			Order("messages.created_at asc")
	}
	if err = base().Where("friendships.owner_id = ?", userID).Find(&sent).Error; err != nil {
		return nil, nil, err
	}
	if err = base().Where("friendships.friend_id = ?", userID).Find(&received).Error; err != nil {
		return nil, nil, err
	}
	return sent, received, nil
}

// MarkRead marks the unread messages on friendship f read at the given time.
// Messages already read keep their original read time.
func (s *Store) MarkRead(ctx context.Context, f *model.Friendship, at time.Time) (int64, error) {
	res := s.conn(ctx).Model(&model.Message{}).
		Where("friendship_id = ? AND read_at IS NULL", f.ID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}
