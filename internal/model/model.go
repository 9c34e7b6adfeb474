package model

import (
	"time"

	"gorm.io/gorm"
)

// User is an account known to the social core. Authentication lives elsewhere.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username  string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Friendship is one directed half of a symmetric friendship. Every row has a
// twin with owner and friend swapped, linked through ReverseID.
type Friendship struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_owner_friend"`
	Owner     User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	FriendID  string `gorm:"type:varchar(36);not null;uniqueIndex:idx_owner_friend;index"`
	Friend    User   `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE"`
	ReverseID string `gorm:"type:varchar(36);index"`
	CreatedAt time.Time
}

// FriendRequest is a pending request from FromUser to ToUser.
type FriendRequest struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	FromUserID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_from_to"`
	FromUser   User   `gorm:"foreignKey:FromUserID;constraint:OnDelete:CASCADE"`
	ToUserID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_from_to;index"`
	ToUser     User   `gorm:"foreignKey:ToUserID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
}

// Message belongs to the directed friendship row of its sender.
type Message struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	FriendshipID string     `gorm:"type:varchar(36);not null;index"`
	Friendship   Friendship `gorm:"foreignKey:FriendshipID;constraint:OnDelete:CASCADE"`
	Content      string     `gorm:"type:text;not null"`
	CreatedAt    time.Time
	ReadAt       *time.Time
}

// Read reports whether the message left the unread state.
func (m *Message) Read() bool {
	return m.ReadAt != nil
}

// SetupDatabase migrates the social tables.
func SetupDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Friendship{},
		&FriendRequest{},
		&Message{},
	)
}
