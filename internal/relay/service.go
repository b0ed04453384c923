package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/crypto"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/hub"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/presence"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/storage"
)

const (
	imageBlobPrefix = "chat_images/"
	fileBlobPrefix  = "chat_files/"
)

type relayService struct {
	hub          *hub.Hub
	store        store.Store
	blobs        storage.Storage
	cipher       *crypto.Cipher
	presence     *presence.Tracker
	historyLimit int
	urlTTL       time.Duration
}

func NewService(
	h *hub.Hub,
	st store.Store,
	blobs storage.Storage,
	cipher *crypto.Cipher,
	tracker *presence.Tracker,
	historyLimit int,
	urlTTL time.Duration,
) Service {
	return &relayService{
		hub:          h,
		store:        st,
		blobs:        blobs,
		cipher:       cipher,
		presence:     tracker,
		historyLimit: historyLimit,
		urlTTL:       urlTTL,
	}
}

func (s *relayService) Connect(ctx context.Context, c *hub.Client, room string) {
	l := log.Ctx(ctx)

	s.hub.Join(room, c)

	if c.Session.IsAuthenticated() {
		if err := s.presence.SetOnline(ctx, c.Session.Identity.Username, true); err != nil {
			l.Warn().Err(err).Str(log.FieldUsername, c.Session.Identity.Username).
				Msg("failed to set user online")
		}
	}

	entries := s.history(ctx, room)
	c.SendMessage(&domain.HistoryBroadcast{
		Type:     domain.EventHistory,
		Messages: entries,
	})
}

func (s *relayService) Disconnect(ctx context.Context, c *hub.Client) {
	l := log.Ctx(ctx)

	if c.Session.IsAuthenticated() {
		if err := s.presence.SetOnline(ctx, c.Session.Identity.Username, false); err != nil {
			l.Warn().Err(err).Str(log.FieldUsername, c.Session.Identity.Username).
				Msg("failed to set user offline")
		}
	}

	if room := c.Session.CurrentRoom(); room != "" {
		s.hub.Leave(room, c)
	}
}

func (s *relayService) HandleEvent(ctx context.Context, c *hub.Client, raw []byte) {
	l := log.Ctx(ctx)

	var base domain.BaseEvent
	if err := json.Unmarshal(raw, &base); err != nil {
		l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("dropping malformed event")
		return
	}

	switch base.Type {
	case domain.EventTyping:
		s.handleTyping(c)

	case domain.EventChat:
		var ev domain.ChatEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("dropping malformed chat event")
			return
		}
		s.handleChat(ctx, c, ev)

	case domain.EventImage:
		var ev domain.ImageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("dropping malformed image event")
			return
		}
		s.handleImage(ctx, c, ev)

	case domain.EventFile:
		var ev domain.FileEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("dropping malformed file event")
			return
		}
		s.handleFile(ctx, c, ev)

	default:
		l.Debug().Str(log.FieldEventType, base.Type).Msg("ignoring unknown event type")
	}
}

// handleTyping re-publishes a typing notification carrying only the
// sender's display name. Never persisted.
func (s *relayService) handleTyping(c *hub.Client) {
	room := c.Session.CurrentRoom()
	if room == "" {
		return
	}
	s.hub.Publish(room, &domain.TypingBroadcast{
		Type:     domain.EventTyping,
		Username: c.Session.DisplayName(),
	})
}

// handleChat persists the encrypted text, then broadcasts the plain
// text. A store failure aborts the event: nothing is broadcast.
func (s *relayService) handleChat(ctx context.Context, c *hub.Client, ev domain.ChatEvent) {
	l := log.Ctx(ctx)

	room := c.Session.CurrentRoom()
	text := strings.TrimSpace(ev.Message)
	if room == "" || text == "" || !c.Session.IsAuthenticated() {
		return
	}

	ciphertext, err := s.cipher.Encrypt(text)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to encrypt chat message")
		return
	}

	msg, err := s.persistMessage(ctx, room, &domain.Message{
		Username: c.Session.Identity.Username,
		Kind:     domain.KindText,
		Content:  ciphertext,
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to persist chat message")
		return
	}

	s.hub.Publish(room, &domain.ChatBroadcast{
		Type:      domain.EventChat,
		Username:  c.Session.Identity.Username,
		Message:   text,
		Timestamp: domain.FormatTimestamp(msg.CreatedAt),
	})
}

// handleImage stores the decoded image as a blob under a name with the
// sniffed extension and broadcasts its access URL. Any failure degrades
// to broadcasting the raw data URL, so peers still see the image even
// when it could not be persisted.
func (s *relayService) handleImage(ctx context.Context, c *hub.Client, ev domain.ImageEvent) {
	l := log.Ctx(ctx)

	room := c.Session.CurrentRoom()
	if room == "" || ev.Image == "" || !c.Session.IsAuthenticated() {
		return
	}

	imageURL := ev.Image // degraded fallback
	timestamp := time.Now()

	url, created, err := s.storeImage(ctx, c, room, ev.Image)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to store image, broadcasting raw payload")
	} else {
		imageURL = url
		timestamp = created
	}

	s.hub.Publish(room, &domain.ImageBroadcast{
		Type:      domain.EventImage,
		Username:  c.Session.Identity.Username,
		Image:     imageURL,
		Timestamp: domain.FormatTimestamp(timestamp),
	})
}

func (s *relayService) storeImage(ctx context.Context, c *hub.Client, room, dataURL string) (string, time.Time, error) {
	payload, mediaType, err := decodeDataURL(dataURL)
	if err != nil {
		return "", time.Time{}, err
	}

	// Trust the bytes over the declared type.
	ext := sniffImageFormat(payload)
	if ext == "" {
		ext = strings.TrimPrefix(mediaType, "image/")
	}
	if ext == "" {
		ext = "png"
	}

	key := imageBlobPrefix + randomName() + "." + ext
	if err := s.blobs.Write(ctx, key, bytes.NewReader(payload), int64(len(payload)), mediaType); err != nil {
		return "", time.Time{}, err
	}

	msg, err := s.persistMessage(ctx, room, &domain.Message{
		Username: c.Session.Identity.Username,
		Kind:     domain.KindImage,
		BlobRef:  key,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	url, err := s.blobs.GetURL(ctx, key, s.urlTTL)
	if err != nil {
		return "", time.Time{}, err
	}

	log.Ctx(ctx).Debug().Str(log.FieldBlobKey, key).Str(log.FieldRoom, room).Msg("image stored")
	return url, msg.CreatedAt, nil
}

// handleFile stores the decoded payload under a collision-resistant
// name that keeps the original filename as a suffix. Unlike images,
// any failure drops the event: a raw blob is not a sensible display
// fallback.
func (s *relayService) handleFile(ctx context.Context, c *hub.Client, ev domain.FileEvent) {
	l := log.Ctx(ctx)

	room := c.Session.CurrentRoom()
	if room == "" || ev.File == "" || ev.Filename == "" || !c.Session.IsAuthenticated() {
		return
	}

	payload, mediaType, err := decodeDataURL(ev.File)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("dropping file event with bad payload")
		return
	}

	filename := sanitizeFilename(ev.Filename)
	key := fileBlobPrefix + randomName() + "_" + filename

	if err := s.blobs.Write(ctx, key, bytes.NewReader(payload), int64(len(payload)), mediaType); err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to store file blob, dropping event")
		return
	}

	msg, err := s.persistMessage(ctx, room, &domain.Message{
		Username: c.Session.Identity.Username,
		Kind:     domain.KindFile,
		BlobRef:  key,
		Filename: filename,
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to persist file message, dropping event")
		return
	}

	url, err := s.blobs.GetURL(ctx, key, s.urlTTL)
	if err != nil {
		l.Error().Err(err).Str(log.FieldBlobKey, key).Msg("failed to resolve file URL, dropping event")
		return
	}

	s.hub.Publish(room, &domain.FileBroadcast{
		Type:      domain.EventFile,
		Username:  c.Session.Identity.Username,
		Filename:  filename,
		FileURL:   url,
		Timestamp: domain.FormatTimestamp(msg.CreatedAt),
	})
}

// persistMessage resolves the room (creating it on first write) and
// stores the message. Exactly one durable write per successful event.
func (s *relayService) persistMessage(ctx context.Context, roomName string, msg *domain.Message) (*domain.Message, error) {
	room, err := s.store.GetOrCreateRoom(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve room: %w", err)
	}

	msg.RoomID = room.ID
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// history builds the bounded most-recent replay for a room. Failures
// yield an empty (never nil) slice so the client still receives exactly
// one history frame.
func (s *relayService) history(ctx context.Context, room string) []domain.HistoryEntry {
	l := log.Ctx(ctx)

	msgs, err := s.store.ListRecentMessages(ctx, room, s.historyLimit)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("failed to fetch history")
		return []domain.HistoryEntry{}
	}

	entries := make([]domain.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := domain.HistoryEntry{
			Username:  m.Username,
			Kind:      string(m.Kind),
			Timestamp: domain.FormatTimestamp(m.CreatedAt),
		}

		switch m.Kind {
		case domain.KindText:
			entry.Message = s.cipher.Decrypt(m.Content)
		case domain.KindImage:
			entry.Image = s.blobURL(ctx, m.BlobRef)
		case domain.KindFile:
			entry.File = s.blobURL(ctx, m.BlobRef)
			entry.Filename = m.Filename
		}

		entries = append(entries, entry)
	}
	return entries
}

func (s *relayService) blobURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	url, err := s.blobs.GetURL(ctx, key, s.urlTTL)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldBlobKey, key).Msg("failed to resolve blob URL")
		return ""
	}
	return url
}
