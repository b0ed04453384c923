package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
)

func newTestHub() *Hub {
	h := NewHub()
	go h.Run()
	return h
}

func newTestClient(h *Hub, id string) *Client {
	return NewClient(id, h, nil, domain.Identity{Username: id, Authenticated: true}, config.WebSocketConfig{})
}

func recvEvent(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishReachesAllRoomMembers(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	b := newTestClient(h, "b")
	h.Join("lobby", a)
	h.Join("lobby", b)

	require.NoError(t, h.Publish("lobby", map[string]string{"type": "chat", "message": "hi"}))

	for _, c := range []*Client{a, b} {
		event := recvEvent(t, c)
		assert.Equal(t, "chat", event["type"])
		assert.Equal(t, "hi", event["message"])
	}
}

func TestPublishDoesNotCrossRooms(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	b := newTestClient(h, "b")
	h.Join("lobby", a)
	h.Join("other", b)

	require.NoError(t, h.Publish("lobby", map[string]string{"type": "chat"}))

	recvEvent(t, a)
	expectNoEvent(t, b)
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	b := newTestClient(h, "b")
	h.Join("lobby", a)
	h.Join("lobby", b)

	h.Leave("lobby", a)
	require.NoError(t, h.Publish("lobby", map[string]string{"type": "chat"}))

	recvEvent(t, b)
	expectNoEvent(t, a)
	assert.Equal(t, 1, h.RoomMemberCount("lobby"))
}

func TestDoubleLeaveIsHarmless(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	h.Join("lobby", a)
	h.Leave("lobby", a)
	h.Leave("lobby", a)

	assert.Equal(t, 0, h.RoomMemberCount("lobby"))
	assert.False(t, a.Session.IsInRoom())
}

func TestJoinMovesClientBetweenRooms(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	h.Join("lobby", a)
	h.Join("other", a)

	assert.Equal(t, 0, h.RoomMemberCount("lobby"))
	assert.Equal(t, 1, h.RoomMemberCount("other"))
	assert.Equal(t, "other", a.Session.CurrentRoom())
}

func TestUnregisterRemovesFromRoomAndClosesSend(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	h.Register(a)
	h.Join("lobby", a)

	h.Unregister(a)

	// The send channel closes once the unregister is processed.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-a.Send:
			if !ok {
				assert.Equal(t, 0, h.RoomMemberCount("lobby"))
				return
			}
		case <-deadline:
			t.Fatal("send channel never closed")
		}
	}
}

func TestPublishToEmptyRoomIsNoOp(t *testing.T) {
	h := newTestHub()
	require.NoError(t, h.Publish("nobody-here", map[string]string{"type": "chat"}))
}

func TestPublishOrderPreservedPerRoom(t *testing.T) {
	h := newTestHub()

	a := newTestClient(h, "a")
	h.Join("lobby", a)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Publish("lobby", map[string]int{"seq": i}))
	}

	for i := 0; i < 10; i++ {
		event := recvEvent(t, a)
		assert.Equal(t, float64(i), event["seq"])
	}
}

func TestConcurrentJoinLeavePublish(t *testing.T) {
	h := newTestHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := newTestClient(h, fmt.Sprintf("client-%d", i))

		// Drain so the send buffers never fill.
		go func(c *Client) {
			for range c.Send {
			}
		}(c)

		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Join("lobby", c)
				h.Publish("lobby", map[string]string{"type": "typing"})
				h.Leave("lobby", c)
			}
		}(c)
	}

	wg.Wait()
	assert.Equal(t, 0, h.RoomMemberCount("lobby"))
}
