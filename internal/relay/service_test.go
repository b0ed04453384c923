package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/crypto"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/hub"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/presence"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
)

const testContentKey = "n5QergO_eFsagxO-wIon6QCJhxKYNodnRWVX9s6ueMw="

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu       sync.Mutex
	nextID   uint
	rooms    map[string]*domain.Room
	messages []*domain.Message
	statuses map[string]*domain.UserStatus

	failCreateMessage bool
	failListMessages  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[string]*domain.Room),
		statuses: make(map[string]*domain.UserStatus),
	}
}

func (f *fakeStore) GetOrCreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[name]; ok {
		return room, nil
	}
	f.nextID++
	room := &domain.Room{ID: f.nextID, Name: name, CreatedAt: time.Now()}
	f.rooms[name] = room
	return room, nil
}

func (f *fakeStore) GetRoom(ctx context.Context, name string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[name]; ok {
		return room, nil
	}
	return nil, store.ErrRoomNotFound
}

func (f *fakeStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.Name]; ok {
		return store.ErrRoomExists
	}
	f.nextID++
	room.ID = f.nextID
	f.rooms[room.Name] = room
	return nil
}

func (f *fakeStore) DeleteRoom(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[name]; !ok {
		return store.ErrRoomNotFound
	}
	delete(f.rooms, name)
	return nil
}

func (f *fakeStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateMessage {
		return errors.New("store down")
	}
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) ListRecentMessages(ctx context.Context, roomName string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListMessages {
		return nil, errors.New("store down")
	}
	room, ok := f.rooms[roomName]
	if !ok {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	for _, m := range f.messages {
		if m.RoomID == room.ID {
			out = append(out, *m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) GetOrCreateUserStatus(ctx context.Context, username string) (*domain.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[username]; ok {
		return s, nil
	}
	f.nextID++
	s := &domain.UserStatus{ID: f.nextID, Username: username}
	f.statuses[username] = s
	return s, nil
}

func (f *fakeStore) GetUserStatus(ctx context.Context, username string) (*domain.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[username]; ok {
		return s, nil
	}
	return nil, store.ErrStatusNotFound
}

func (f *fakeStore) SaveUserStatus(ctx context.Context, status *domain.UserStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[status.Username] = status
	return nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) lastMessage() *domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

// fakeBlobs is an in-memory blob store with a switchable write failure.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failWrite bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("blob backend down")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBlobs) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "/media/" + key, nil
}

func (f *fakeBlobs) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

type testRelay struct {
	svc   Service
	hub   *hub.Hub
	store *fakeStore
	blobs *fakeBlobs
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	fs := newFakeStore()
	fb := newFakeBlobs()

	provider, err := crypto.NewStaticKeyProvider(testContentKey)
	require.NoError(t, err)

	h := hub.NewHub()
	go h.Run()

	svc := NewService(h, fs, fb, crypto.NewCipher(provider), presence.NewTracker(fs), 50, time.Hour)
	return &testRelay{svc: svc, hub: h, store: fs, blobs: fb}
}

func newMember(t *testing.T, r *testRelay, id, username string) *hub.Client {
	t.Helper()

	identity := domain.Anonymous()
	if username != "" {
		identity = domain.Identity{Username: username, Authenticated: true}
	}

	c := hub.NewClient(id, r.hub, nil, identity, config.WebSocketConfig{})
	r.hub.Register(c)
	r.svc.Connect(context.Background(), c, "lobby")
	return c
}

func recvFrame(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func expectSilence(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

// drainHistory consumes the history frame sent on connect.
func drainHistory(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	frame := recvFrame(t, c)
	require.Equal(t, domain.EventHistory, frame["type"])
	return frame
}

func pngDataURL(t *testing.T, declaredType string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return fmt.Sprintf("data:%s;base64,%s", declaredType, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func TestConnectSendsEmptyHistoryForFreshRoom(t *testing.T) {
	r := newTestRelay(t)
	c := newMember(t, r, "c1", "alice")

	frame := drainHistory(t, c)
	msgs, ok := frame["messages"].([]interface{})
	require.True(t, ok, "messages must be a JSON array, not null")
	assert.Empty(t, msgs)
}

func TestConnectSendsHistoryFrameEvenWhenStoreFails(t *testing.T) {
	r := newTestRelay(t)
	r.store.failListMessages = true

	c := newMember(t, r, "c1", "alice")

	frame := drainHistory(t, c)
	msgs, ok := frame["messages"].([]interface{})
	require.True(t, ok, "messages must be a JSON array, not null")
	assert.Empty(t, msgs)
}

func TestChatPersistsEncryptedAndBroadcastsPlaintext(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	bob := newMember(t, r, "c2", "bob")
	drainHistory(t, alice)
	drainHistory(t, bob)

	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"chat","message":"  hello room  "}`))

	for _, c := range []*hub.Client{alice, bob} {
		frame := recvFrame(t, c)
		assert.Equal(t, "chat", frame["type"])
		assert.Equal(t, "alice", frame["username"])
		assert.Equal(t, "hello room", frame["message"])

		ts, _ := frame["timestamp"].(string)
		_, err := time.Parse(domain.TimestampLayout, ts)
		assert.NoError(t, err, "timestamp must use the display layout")
	}

	require.Equal(t, 1, r.store.messageCount())
	msg := r.store.lastMessage()
	assert.Equal(t, domain.KindText, msg.Kind)
	assert.Equal(t, "alice", msg.Username)
	assert.NotEqual(t, "hello room", msg.Content, "stored content must be ciphertext")
	assert.NotContains(t, msg.Content, "hello")
}

func TestHistoryReplaysDecryptedText(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"chat","message":"first"}`))
	recvFrame(t, alice)
	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"chat","message":"second"}`))
	recvFrame(t, alice)

	late := newMember(t, r, "c2", "bob")
	frame := drainHistory(t, late)

	msgs := frame["messages"].([]interface{})
	require.Len(t, msgs, 2)

	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "alice", first["username"])
	assert.Equal(t, "first", first["message"])
	assert.Equal(t, "text", first["type"])

	second := msgs[1].(map[string]interface{})
	assert.Equal(t, "second", second["message"])
}

func TestHistoryRendersPlaceholderForCorruptRow(t *testing.T) {
	r := newTestRelay(t)
	ctx := context.Background()

	room, err := r.store.GetOrCreateRoom(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, r.store.CreateMessage(ctx, &domain.Message{
		RoomID:   room.ID,
		Username: "alice",
		Kind:     domain.KindText,
		Content:  "garbage that is not a valid token",
	}))

	c := newMember(t, r, "c1", "bob")
	frame := drainHistory(t, c)

	msgs := frame["messages"].([]interface{})
	require.Len(t, msgs, 1)
	entry := msgs[0].(map[string]interface{})
	assert.Equal(t, crypto.PlaceholderUnreadable, entry["message"])
}

func TestUnauthenticatedChatIsDropped(t *testing.T) {
	r := newTestRelay(t)
	anon := newMember(t, r, "c1", "")
	drainHistory(t, anon)

	r.svc.HandleEvent(context.Background(), anon, []byte(`{"type":"chat","message":"hi"}`))

	expectSilence(t, anon)
	assert.Zero(t, r.store.messageCount())
}

func TestWhitespaceOnlyChatIsDropped(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"chat","message":"   \n\t  "}`))

	expectSilence(t, alice)
	assert.Zero(t, r.store.messageCount())
}

func TestChatStoreFailureAbortsBroadcast(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	bob := newMember(t, r, "c2", "bob")
	drainHistory(t, alice)
	drainHistory(t, bob)

	r.store.failCreateMessage = true
	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"chat","message":"hello"}`))

	expectSilence(t, alice)
	expectSilence(t, bob)
	assert.Zero(t, r.store.messageCount())
}

func TestTypingIsBroadcastButNeverPersisted(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	bob := newMember(t, r, "c2", "bob")
	drainHistory(t, alice)
	drainHistory(t, bob)

	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"typing"}`))

	for _, c := range []*hub.Client{alice, bob} {
		frame := recvFrame(t, c)
		assert.Equal(t, "typing", frame["type"])
		assert.Equal(t, "alice", frame["username"])
	}
	assert.Zero(t, r.store.messageCount())
}

func TestAnonymousTypingUsesDisplayName(t *testing.T) {
	r := newTestRelay(t)
	anon := newMember(t, r, "c1", "")
	drainHistory(t, anon)

	r.svc.HandleEvent(context.Background(), anon, []byte(`{"type":"typing"}`))

	frame := recvFrame(t, anon)
	assert.Equal(t, domain.AnonymousName, frame["username"])
}

func TestMalformedEventIsIgnored(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.svc.HandleEvent(context.Background(), alice, []byte(`{not json`))
	r.svc.HandleEvent(context.Background(), alice, []byte(`{"type":"dance"}`))

	expectSilence(t, alice)
	assert.Zero(t, r.store.messageCount())
}

func TestImageStoredUnderSniffedExtension(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	// Declared jpeg, actual png bytes: the content wins.
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"image","image":%q}`, pngDataURL(t, "image/jpeg"))))

	frame := recvFrame(t, alice)
	assert.Equal(t, "image", frame["type"])
	assert.Equal(t, "alice", frame["username"])

	imageURL, _ := frame["image"].(string)
	assert.True(t, strings.HasPrefix(imageURL, "/media/chat_images/"), "got %q", imageURL)
	assert.True(t, strings.HasSuffix(imageURL, ".png"), "got %q", imageURL)

	keys := r.blobs.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], ".png"))

	require.Equal(t, 1, r.store.messageCount())
	msg := r.store.lastMessage()
	assert.Equal(t, domain.KindImage, msg.Kind)
	assert.Equal(t, keys[0], msg.BlobRef)
	assert.Empty(t, msg.Content)
}

func TestImageBlobFailureDegradesToRawBroadcast(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	bob := newMember(t, r, "c2", "bob")
	drainHistory(t, alice)
	drainHistory(t, bob)

	r.blobs.failWrite = true
	dataURL := pngDataURL(t, "image/png")
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"image","image":%q}`, dataURL)))

	for _, c := range []*hub.Client{alice, bob} {
		frame := recvFrame(t, c)
		assert.Equal(t, "image", frame["type"])
		assert.Equal(t, dataURL, frame["image"], "peers still see the raw payload")
	}
	assert.Zero(t, r.store.messageCount())
	assert.Empty(t, r.blobs.keys())
}

func TestUnparsableImagePayloadDegradesToRawBroadcast(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.svc.HandleEvent(context.Background(), alice, []byte(
		`{"type":"image","image":"no comma here"}`))

	frame := recvFrame(t, alice)
	assert.Equal(t, "image", frame["type"])
	assert.Equal(t, "no comma here", frame["image"])
	assert.Zero(t, r.store.messageCount())
}

func TestFileStoredWithSanitizedFilenameSuffix(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	payload := base64.StdEncoding.EncodeToString([]byte("report body"))
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"file","file":"data:application/pdf;base64,%s","filename":"../../etc/report.pdf"}`, payload)))

	frame := recvFrame(t, alice)
	assert.Equal(t, "file", frame["type"])
	assert.Equal(t, "alice", frame["username"])
	assert.Equal(t, "report.pdf", frame["filename"])

	fileURL, _ := frame["file_url"].(string)
	assert.True(t, strings.HasPrefix(fileURL, "/media/chat_files/"), "got %q", fileURL)
	assert.True(t, strings.HasSuffix(fileURL, "_report.pdf"), "got %q", fileURL)

	require.Equal(t, 1, r.store.messageCount())
	msg := r.store.lastMessage()
	assert.Equal(t, domain.KindFile, msg.Kind)
	assert.Equal(t, "report.pdf", msg.Filename)
}

func TestFileBlobFailureDropsEvent(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.blobs.failWrite = true
	payload := base64.StdEncoding.EncodeToString([]byte("doc"))
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"file","file":"data:text/plain;base64,%s","filename":"a.txt"}`, payload)))

	expectSilence(t, alice)
	assert.Zero(t, r.store.messageCount())
}

func TestFileWithoutFilenameIsDropped(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	payload := base64.StdEncoding.EncodeToString([]byte("doc"))
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"file","file":"data:text/plain;base64,%s","filename":""}`, payload)))

	expectSilence(t, alice)
	assert.Zero(t, r.store.messageCount())
}

func TestHistoryResolvesBlobURLs(t *testing.T) {
	r := newTestRelay(t)
	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"image","image":%q}`, pngDataURL(t, "image/png"))))
	recvFrame(t, alice)

	payload := base64.StdEncoding.EncodeToString([]byte("doc"))
	r.svc.HandleEvent(context.Background(), alice, []byte(fmt.Sprintf(
		`{"type":"file","file":"data:text/plain;base64,%s","filename":"notes.txt"}`, payload)))
	recvFrame(t, alice)

	late := newMember(t, r, "c2", "bob")
	frame := drainHistory(t, late)
	msgs := frame["messages"].([]interface{})
	require.Len(t, msgs, 2)

	imageEntry := msgs[0].(map[string]interface{})
	assert.Equal(t, "image", imageEntry["type"])
	assert.Contains(t, imageEntry["image"], "/media/chat_images/")

	fileEntry := msgs[1].(map[string]interface{})
	assert.Equal(t, "file", fileEntry["type"])
	assert.Contains(t, fileEntry["file"], "/media/chat_files/")
	assert.Equal(t, "notes.txt", fileEntry["filename"])
}

func TestConnectAndDisconnectTrackPresence(t *testing.T) {
	r := newTestRelay(t)
	ctx := context.Background()

	alice := newMember(t, r, "c1", "alice")
	drainHistory(t, alice)

	status, err := r.store.GetUserStatus(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, status.IsOnline)

	r.svc.Disconnect(ctx, alice)

	status, err = r.store.GetUserStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, status.IsOnline)
	assert.False(t, status.LastSeen.IsZero())
}

func TestDisconnectStopsDelivery(t *testing.T) {
	r := newTestRelay(t)
	ctx := context.Background()

	alice := newMember(t, r, "c1", "alice")
	bob := newMember(t, r, "c2", "bob")
	drainHistory(t, alice)
	drainHistory(t, bob)

	r.svc.Disconnect(ctx, bob)
	// A second disconnect must be harmless.
	r.svc.Disconnect(ctx, bob)

	r.svc.HandleEvent(ctx, alice, []byte(`{"type":"chat","message":"still here"}`))

	frame := recvFrame(t, alice)
	assert.Equal(t, "still here", frame["message"])
	expectSilence(t, bob)
}

func TestAnonymousConnectDoesNotTouchPresence(t *testing.T) {
	r := newTestRelay(t)

	anon := newMember(t, r, "c1", "")
	drainHistory(t, anon)

	_, err := r.store.GetUserStatus(context.Background(), domain.AnonymousName)
	assert.ErrorIs(t, err, store.ErrStatusNotFound)
}
