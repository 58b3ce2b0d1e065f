package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jusunglee/bikeshare-go/internal/models"
)

const (
	streamBuffer = 16
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream pushes every marker update to a websocket client, starting
// with the current marker set when one exists. Clients that fall more than
// streamBuffer updates behind miss updates.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := make(chan models.MarkerUpdate, streamBuffer)
	sub := h.client.Subscribe(func(u models.MarkerUpdate) {
		select {
		case updates <- u:
		default:
			log.Warnf("stream %s is behind, dropping %s update", r.RemoteAddr, u.Kind)
		}
	})
	defer sub.Unsubscribe()

	// updates queued before the current set was taken are older than it
	var since time.Time
	if current, err := h.client.Current(); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(current.ConvertToResponse()); err != nil {
			return
		}
		since = current.At
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	log.Debugf("stream %s opened", r.RemoteAddr)
	for {
		select {
		case u := <-updates:
			if !u.At.After(since) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u.ConvertToResponse()); err != nil {
				log.Debugf("stream %s write failed: %v", r.RemoteAddr, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			log.Debugf("stream %s closed", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}
