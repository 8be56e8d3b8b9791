package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ttrpg-tracker/internal/app/realtime"
)

func (h *Handler) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.allowOrigin,
	}
}

// allowOrigin applies CORS_ORIGIN to browsers. Non-browser clients send no Origin.
func (h *Handler) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.corsOrigin == "" || h.corsOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, h.corsOrigin)
}

// eventsWS streams the caller's mutation events until the socket closes.
func (h *Handler) eventsWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing token", Code: codeUnauthorized})
		return
	}
	uid, err := h.auth.ParseToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token", Code: codeUnauthorized})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.Register(conn, uid)
	h.logger.Debug().Str("client_id", client.ID).Str("user_id", uid.String()).Msg("event stream opened")
	go h.writePump(client)
	h.readPump(client)
}

// readPump only watches for the peer going away; clients send nothing but pongs.
func (h *Handler) readPump(client *realtime.Client) {
	defer h.hub.Unregister(client)
	client.Conn.SetReadLimit(512)
	_ = client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		_ = client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(client *realtime.Client) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
