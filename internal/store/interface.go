package store

import (
	"context"
	"errors"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomExists     = errors.New("room already exists")
	ErrStatusNotFound = errors.New("user status not found")
)

// Store is the persistent CRUD surface behind the relay. All operations
// are synchronous and transactional at the single-row level; callers
// decide per call site whether a failure is fatal to the event or only
// logged.
type Store interface {
	// GetOrCreateRoom returns the room with the given name, creating a
	// public room if none exists. The chat/image/file write path relies
	// on this for implicit room creation.
	GetOrCreateRoom(ctx context.Context, name string) (*domain.Room, error)

	// GetRoom returns the room with the given name or ErrRoomNotFound.
	GetRoom(ctx context.Context, name string) (*domain.Room, error)

	// CreateRoom creates a room; ErrRoomExists if the name is taken.
	CreateRoom(ctx context.Context, room *domain.Room) error

	// DeleteRoom removes the room and all its messages.
	DeleteRoom(ctx context.Context, name string) error

	// ListRooms returns all rooms ordered by creation time.
	ListRooms(ctx context.Context) ([]domain.Room, error)

	// CreateMessage persists one message row.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// ListRecentMessages returns up to limit most recent messages for
	// the room, ordered oldest-first. A missing room yields an empty
	// slice, not an error.
	ListRecentMessages(ctx context.Context, roomName string, limit int) ([]domain.Message, error)

	// GetOrCreateUserStatus returns the user's status row, creating an
	// offline one if none exists.
	GetOrCreateUserStatus(ctx context.Context, username string) (*domain.UserStatus, error)

	// GetUserStatus returns the user's status row or ErrStatusNotFound.
	GetUserStatus(ctx context.Context, username string) (*domain.UserStatus, error)

	// SaveUserStatus persists the user's status row.
	SaveUserStatus(ctx context.Context, status *domain.UserStatus) error
}
