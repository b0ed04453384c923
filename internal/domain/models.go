package domain

import "time"

// MessageKind distinguishes what a message carries.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

// Room is a named chat channel. A room with an empty PasswordHash is
// public. Deleting a room cascades to its messages.
type Room struct {
	ID           uint      `gorm:"primarykey"`
	Name         string    `gorm:"size:255;uniqueIndex;not null"`
	IsPrivate    bool      `gorm:"not null;default:false"`
	PasswordHash string    `gorm:"size:128"`
	CreatedBy    string    `gorm:"size:150;index"`
	CreatedAt    time.Time
}

// Message is one persisted chat entry. Content holds ciphertext for
// text messages and is empty for image/file messages, which reference a
// stored blob instead. Messages are never mutated after creation.
type Message struct {
	ID        uint        `gorm:"primarykey"`
	RoomID    uint        `gorm:"index;not null"`
	Username  string      `gorm:"size:150;not null"`
	Kind      MessageKind `gorm:"size:16;not null"`
	Content   string
	BlobRef   string `gorm:"size:512"`
	Filename  string `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index"`
}

// UserStatus tracks one user's online flag and last-seen timestamp.
// Created lazily on first connect, never deleted.
type UserStatus struct {
	ID       uint   `gorm:"primarykey"`
	Username string `gorm:"size:150;uniqueIndex;not null"`
	IsOnline bool   `gorm:"not null;default:false"`
	LastSeen time.Time
}
