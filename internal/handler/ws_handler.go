package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/auth"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/hub"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/relay"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and binds them to relay sessions.
type WSHandler struct {
	hub      *hub.Hub
	service  relay.Service
	verifier *auth.Verifier
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc relay.Service, verifier *auth.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
	}
}

// HandleWebSocket serves GET /ws/:room. The room name arrives
// pre-validated (access control for private rooms happens upstream) and
// the identity is whatever the forwarded token names.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	identity := h.verifier.Identify(tokenFrom(c))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, identity, h.wsCfg)
	h.hub.Register(client)

	ctx := c.Request.Context()

	go client.WritePump()

	h.service.Connect(ctx, client, room)

	client.ReadPump(func(cl *hub.Client, raw []byte) {
		h.service.HandleEvent(ctx, cl, raw)
	})

	h.service.Disconnect(ctx, client)
}

// tokenFrom reads the forwarded identity token from the query string or
// the Authorization header. Browsers cannot set headers on websocket
// dials, hence the query fallback.
func tokenFrom(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:room", h.HandleWebSocket)
}
