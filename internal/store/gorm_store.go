package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-based store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate runs auto-migration for all relay models.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&domain.Room{}, &domain.Message{}, &domain.UserStatus{})
}

func (s *GormStore) GetOrCreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	var room domain.Room
	result := s.db.WithContext(ctx).
		Where(domain.Room{Name: name}).
		FirstOrCreate(&room)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoom, name).Msg("failed to get or create room")
		return nil, result.Error
	}
	return &room, nil
}

func (s *GormStore) GetRoom(ctx context.Context, name string) (*domain.Room, error) {
	var room domain.Room
	result := s.db.WithContext(ctx).First(&room, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		log.Ctx(ctx).Error().Err(result.Error).Str(log.FieldRoom, name).Msg("failed to get room")
		return nil, result.Error
	}
	return &room, nil
}

func (s *GormStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("name = ?", room.Name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrRoomExists
	}

	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room.Name).Msg("failed to create room")
		return err
	}
	l.Debug().Str(log.FieldRoom, room.Name).Msg("room created")
	return nil
}

// DeleteRoom removes the room row and cascades to its messages inside
// one transaction.
func (s *GormStore) DeleteRoom(ctx context.Context, name string) error {
	l := log.Ctx(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.First(&room, "name = ?", name).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}

		if err := tx.Where("room_id = ?", room.ID).Delete(&domain.Message{}).Error; err != nil {
			l.Error().Err(err).Str(log.FieldRoom, name).Msg("failed to delete room messages")
			return err
		}

		if err := tx.Delete(&room).Error; err != nil {
			l.Error().Err(err).Str(log.FieldRoom, name).Msg("failed to delete room")
			return err
		}

		l.Debug().Str(log.FieldRoom, name).Msg("room deleted")
		return nil
	})
}

func (s *GormStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rooms).Error; err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list rooms")
		return nil, err
	}
	return rooms, nil
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUsername, msg.Username).Msg("failed to create message")
		return err
	}
	return nil
}

// ListRecentMessages fetches the newest rows first, then reverses them
// so the caller receives oldest-first, the order history replays in.
func (s *GormStore) ListRecentMessages(ctx context.Context, roomName string, limit int) ([]domain.Message, error) {
	room, err := s.GetRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return []domain.Message{}, nil
		}
		return nil, err
	}

	var msgs []domain.Message
	result := s.db.WithContext(ctx).
		Where("room_id = ?", room.ID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&msgs)
	if result.Error != nil {
		log.Ctx(ctx).Error().Err(result.Error).Str(log.FieldRoom, roomName).Msg("failed to list messages")
		return nil, result.Error
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *GormStore) GetOrCreateUserStatus(ctx context.Context, username string) (*domain.UserStatus, error) {
	var status domain.UserStatus
	result := s.db.WithContext(ctx).
		Where(domain.UserStatus{Username: username}).
		FirstOrCreate(&status)
	if result.Error != nil {
		log.Ctx(ctx).Error().Err(result.Error).Str(log.FieldUsername, username).Msg("failed to get or create user status")
		return nil, result.Error
	}
	return &status, nil
}

func (s *GormStore) GetUserStatus(ctx context.Context, username string) (*domain.UserStatus, error) {
	var status domain.UserStatus
	result := s.db.WithContext(ctx).First(&status, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStatusNotFound
		}
		return nil, result.Error
	}
	return &status, nil
}

func (s *GormStore) SaveUserStatus(ctx context.Context, status *domain.UserStatus) error {
	if err := s.db.WithContext(ctx).Save(status).Error; err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUsername, status.Username).Msg("failed to save user status")
		return err
	}
	return nil
}
