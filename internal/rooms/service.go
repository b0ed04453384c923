package rooms

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
)

var (
	ErrEmptyName = errors.New("room name must not be empty")
	ErrForbidden = errors.New("not allowed to delete this room")
)

// Service handles room administration: explicit creation with optional
// password gating, deletion by the creator or an administrator, and the
// password check consumed by the upstream access-control layer.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Create creates a room. A non-empty password is hashed and marks the
// room private.
func (s *Service) Create(ctx context.Context, name, password, creator string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	room := &domain.Room{
		Name:      name,
		CreatedBy: creator,
	}

	if password = strings.TrimSpace(password); password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		room.PasswordHash = string(hash)
		room.IsPrivate = true
	}

	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str(log.FieldRoom, name).
		Str(log.FieldUsername, creator).
		Bool("private", room.IsPrivate).
		Msg("room created")
	return room, nil
}

// Delete removes a room and all its messages. Only the creator or an
// administrator may delete a room.
func (s *Service) Delete(ctx context.Context, name, requester string, admin bool) error {
	room, err := s.store.GetRoom(ctx, name)
	if err != nil {
		return err
	}

	if !admin && room.CreatedBy != requester {
		return ErrForbidden
	}

	if err := s.store.DeleteRoom(ctx, name); err != nil {
		return err
	}

	log.Ctx(ctx).Info().
		Str(log.FieldRoom, name).
		Str(log.FieldUsername, requester).
		Msg("room deleted")
	return nil
}

// List returns all rooms.
func (s *Service) List(ctx context.Context) ([]domain.Room, error) {
	return s.store.ListRooms(ctx)
}

// CheckPassword reports whether the given password grants access to the
// room. Public rooms always grant access.
func (s *Service) CheckPassword(ctx context.Context, name, password string) (bool, error) {
	room, err := s.store.GetRoom(ctx, name)
	if err != nil {
		return false, err
	}

	if room.PasswordHash == "" {
		return true, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password))
	return err == nil, nil
}
