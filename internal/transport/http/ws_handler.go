package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizastrous-server/internal/app"
)

type WSHandler struct {
	game     *app.Game
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(game *app.Game, hub *Hub) *WSHandler {
	return &WSHandler{
		game: game,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers it as an observer. The first frame is the current
// snapshot; later frames follow the heartbeat and every state change.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	if err := h.hub.Register(conn, h.game.Snapshot(h.game.Now())); err != nil {
		log.Error().Err(err).Msg("ws register failed")
		conn.Close()
	}
}
