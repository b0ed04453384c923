package relay

import (
	"context"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/hub"
)

// Service owns the lifecycle and protocol handling of one client
// connection: join/leave, inbound event dispatch, persistence and
// re-publication onto the broadcast bus.
type Service interface {
	// Connect joins the client to a room, marks the user online and
	// replays recent history. Presence and history failures are logged
	// and swallowed; they never abort the connection.
	Connect(ctx context.Context, c *hub.Client, room string)

	// Disconnect marks the user offline and removes the client from
	// its room. Idempotent; safe after a partially failed Connect.
	Disconnect(ctx context.Context, c *hub.Client)

	// HandleEvent parses and dispatches one inbound frame. Malformed
	// or invalid events are dropped without surfacing an error to the
	// client.
	HandleEvent(ctx context.Context, c *hub.Client, raw []byte)
}
