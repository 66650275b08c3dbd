package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/store"
)

type handlers struct {
	coord *app.Coordinator
	cfg   *config.Config
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,min=3,max=50"`
	Description string `json:"description" binding:"required,min=10,max=200"`
	MaxMembers  *int   `json:"maxMembers" binding:"omitempty,min=1"`
	IsPrivate   bool   `json:"isPrivate"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=1000"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=active archived closed"`
}

func (h *handlers) listRooms(c *gin.Context) {
	f := store.RoomFilter{
		Page:    pageParam(c),
		PerPage: h.cfg.RoomsPerPage,
		Status:  domain.RoomStatus(c.DefaultQuery("status", string(domain.StatusActive))),
	}
	if raw, ok := c.GetQuery("isPrivate"); ok {
		private := raw == "true"
		f.IsPrivate = &private
	}
	if !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	page, err := h.coord.ListRooms(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms": page.Rooms,
		"pagination": gin.H{
			"page":       page.Page,
			"totalPages": page.TotalPages,
			"totalRooms": page.TotalRooms,
		},
	})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity, _ := auth.IdentityFrom(c)

	room, err := h.coord.CreateRoom(c.Request.Context(), identity, app.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		MaxMembers:  req.MaxMembers,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) joinRoom(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)
	roomID := c.Param("roomId")

	if err := h.coord.Join(c.Request.Context(), identity, roomID); err != nil {
		respondError(c, err)
		return
	}
	room, err := h.coord.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) leaveRoom(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)
	roomID := c.Param("roomId")

	if err := h.coord.Leave(c.Request.Context(), identity, roomID); err != nil {
		respondError(c, err)
		return
	}
	room, err := h.coord.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) updateRoomStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity, _ := auth.IdentityFrom(c)

	room, err := h.coord.SetStatus(c.Request.Context(), identity, c.Param("roomId"), domain.RoomStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *handlers) listMessages(c *gin.Context) {
	page, err := h.coord.ListMessages(c.Request.Context(), c.Param("roomId"), pageParam(c), h.cfg.MessagesPerPage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": page.Messages,
		"pagination": gin.H{
			"page":          page.Page,
			"totalPages":    page.TotalPages,
			"totalMessages": page.TotalMessages,
		},
	})
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity, _ := auth.IdentityFrom(c)

	msg, err := h.coord.SendMessage(c.Request.Context(), identity, c.Param("roomId"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// respondError maps coordinator failures onto HTTP statuses. Collaborator
// failures are logged and surfaced as a generic 500; nothing internal leaks.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, domain.ErrNotCreator),
		errors.Is(err, domain.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrNoRoles):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRoomInactive),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrRoomPrivate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "httpapi").Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
