package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
)

// Events consumed from connections.
const (
	eventJoinRoom    = "join room"
	eventLeaveRoom   = "leave room"
	eventSendMessage = "sendMessage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests and pumps their events through the
// coordinator.
type Handler struct {
	coord    *app.Coordinator
	cfg      *config.Config
	validate *validator.Validate
	limiter  *messageLimiter
}

func NewHandler(coord *app.Coordinator, cfg *config.Config) *Handler {
	return &Handler{
		coord:    coord,
		cfg:      cfg,
		validate: validator.New(),
		limiter:  newMessageLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow),
	}
}

// Handle upgrades the connection. Authentication already happened in
// middleware; a request without an identity never reaches the socket loop.
func (h *Handler) Handle(ctx context.Context, c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	log.Info().Str("module", "ws").Str("subject", identity.Subject).
		Str("user", identity.DisplayName()).Msg("connection established")

	cn := newConn(ws, h.cfg.SendBuffer)
	h.coord.Connect(identity, cn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		cn.writePump(ctx, h.cfg.PingPeriod)
		// Closing the socket here unblocks a read in progress, so
		// cancellation ends the session without waiting out the read
		// deadline.
		cn.Close()
	}()
	go h.readPump(ctx, cancel, identity, cn)
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, identity domain.Identity, cn *conn) {
	defer func() {
		cancel()
		cn.Close()
		h.limiter.forget(identity.Subject)
		// The read loop exiting is the disconnect signal. Use a fresh
		// context so eviction and the user-left broadcast still run.
		h.coord.Disconnect(context.Background(), identity, cn)
		log.Info().Str("module", "ws").Str("subject", identity.Subject).Msg("connection closed")
	}()

	cn.ws.SetReadLimit(h.cfg.ReadLimit)
	pongWait := h.cfg.PingPeriod + writeWait
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "ws").Str("subject", identity.Subject).Msg("read error")
			}
			return
		}
		h.dispatch(ctx, identity, cn, data)
	}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type sendPayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	Content string `json:"content" validate:"required,max=1000"`
	// Clients may supply an id and timestamp; both are ignored and
	// reassigned on persist.
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
}

// dispatch routes one inbound frame. Frames are handled inline on the read
// loop, so one identity's requests are processed strictly in arrival order.
func (h *Handler) dispatch(ctx context.Context, identity domain.Identity, cn core.Conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.sendError(cn, core.ErrTypeBadPayload, "malformed event envelope")
		return
	}

	switch env.Event {
	case eventJoinRoom:
		roomID, ok := h.roomID(cn, env.Data)
		if !ok {
			return
		}
		if err := h.coord.Join(ctx, identity, roomID); err != nil {
			h.sendError(cn, core.ErrTypeJoinRoom, err.Error())
		}

	case eventLeaveRoom:
		roomID, ok := h.roomID(cn, env.Data)
		if !ok {
			return
		}
		if err := h.coord.Leave(ctx, identity, roomID); err != nil {
			h.sendError(cn, core.ErrTypeLeaveRoom, err.Error())
		}

	case eventSendMessage:
		var p sendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			h.sendError(cn, core.ErrTypeBadPayload, "malformed send payload")
			return
		}
		if err := h.validate.Struct(p); err != nil {
			h.sendError(cn, core.ErrTypeSendMessage, "roomId and content are required")
			return
		}
		if !h.limiter.allow(identity.Subject) {
			h.sendError(cn, core.ErrTypeRateLimited, "too many messages, slow down")
			return
		}
		if _, err := h.coord.SendMessage(ctx, identity, p.RoomID, p.Content); err != nil {
			h.sendError(cn, core.ErrTypeSendMessage, err.Error())
		}

	default:
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
		h.sendError(cn, core.ErrTypeBadPayload, "unknown event: "+env.Event)
	}
}

// roomID accepts either {"roomId": "..."} or a bare JSON string.
func (h *Handler) roomID(cn core.Conn, data []byte) (string, bool) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		var plain string
		if err := json.Unmarshal(data, &plain); err != nil || plain == "" {
			h.sendError(cn, core.ErrTypeBadPayload, "invalid room id")
			return "", false
		}
		return plain, true
	}
	if err := h.validate.Struct(p); err != nil {
		h.sendError(cn, core.ErrTypeBadPayload, "invalid room id")
		return "", false
	}
	return p.RoomID, true
}

// sendError emits a scoped error event to the originating connection only.
func (h *Handler) sendError(cn core.Conn, errType, message string) {
	data, err := json.Marshal(core.ErrorEvent(errType, message))
	if err != nil {
		return
	}
	_ = cn.TrySend(data)
}
