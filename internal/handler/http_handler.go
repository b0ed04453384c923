package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/auth"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/presence"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/rooms"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
)

// HTTPHandler exposes room administration and presence queries.
type HTTPHandler struct {
	rooms    *rooms.Service
	presence *presence.Tracker
	verifier *auth.Verifier
}

func NewHTTPHandler(roomSvc *rooms.Service, tracker *presence.Tracker, verifier *auth.Verifier) *HTTPHandler {
	return &HTTPHandler{
		rooms:    roomSvc,
		presence: tracker,
		verifier: verifier,
	}
}

type createRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password"`
}

type roomResponse struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	CreatedBy string `json:"created_by"`
}

type statusResponse struct {
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen"`
}

func (h *HTTPHandler) ListRooms(c *gin.Context) {
	list, err := h.rooms.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	out := make([]roomResponse, 0, len(list))
	for _, r := range list {
		out = append(out, roomResponse{
			Name:      r.Name,
			IsPrivate: r.IsPrivate,
			CreatedBy: r.CreatedBy,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *HTTPHandler) CreateRoom(c *gin.Context) {
	identity := h.identify(c)
	if !identity.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), req.Name, req.Password, identity.Username)
	if err != nil {
		switch {
		case errors.Is(err, rooms.ErrEmptyName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "room name must not be empty"})
		case errors.Is(err, store.ErrRoomExists):
			c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		}
		return
	}

	c.JSON(http.StatusCreated, roomResponse{
		Name:      room.Name,
		IsPrivate: room.IsPrivate,
		CreatedBy: room.CreatedBy,
	})
}

func (h *HTTPHandler) DeleteRoom(c *gin.Context) {
	identity := h.identify(c)
	if !identity.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	err := h.rooms.Delete(c.Request.Context(), c.Param("name"), identity.Username, identity.Admin)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		case errors.Is(err, rooms.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the creator or an admin can delete a room"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete room"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) GetUserStatus(c *gin.Context) {
	status, err := h.presence.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, store.ErrStatusNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user status not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user status"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Username: status.Username,
		IsOnline: status.IsOnline,
		LastSeen: domain.FormatTimestamp(status.LastSeen),
	})
}

func (h *HTTPHandler) identify(c *gin.Context) domain.Identity {
	return h.verifier.Identify(tokenFrom(c))
}

// RegisterRoutes mounts the REST endpoints.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms", h.CreateRoom)
	api.DELETE("/rooms/:name", h.DeleteRoom)
	api.GET("/users/:username/status", h.GetUserStatus)
}
