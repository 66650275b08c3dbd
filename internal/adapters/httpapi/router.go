// Package httpapi exposes the REST surface: room directory, room lifecycle,
// message history, and the websocket handshake endpoint.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleychat/parley/internal/adapters/ws"
	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, verifier *auth.Verifier, coord *app.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{coord: coord, cfg: cfg}
	sock := ws.NewHandler(coord, cfg)

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rooms := api.Group("/rooms", auth.RequireAuth(verifier), auth.RequireRole("user", "admin"))
	rooms.GET("", h.listRooms)
	rooms.POST("", h.createRoom)
	rooms.POST("/:roomId/join", h.joinRoom)
	rooms.POST("/:roomId/leave", h.leaveRoom)
	rooms.PUT("/:roomId/status", h.updateRoomStatus)
	rooms.GET("/:roomId/messages", h.listMessages)
	rooms.POST("/:roomId/messages", h.sendMessage)

	r.GET("/ws", auth.RequireAuth(verifier), func(c *gin.Context) {
		sock.Handle(ctx, c)
	})

	return r
}
