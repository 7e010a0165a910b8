package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"framereel/internal/api"
	"framereel/internal/jobs"
	"framereel/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to loopback by default and is token-protected otherwise.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket pushes job events to the client. The first message is a
// job_status event describing the current state; every later event follows in
// sequence order until either side closes.
func (s *apiServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only control frames are expected; any read error ends the session.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	coordinator := s.daemon.coordinator
	hub := coordinator.Hub()
	cursor := hub.LastSequence()
	snap := coordinator.Snapshot()
	hello := api.Event{
		Sequence: cursor,
		JobID:    snap.JobID,
		Type:     string(jobs.KindJobStatus),
		Content:  snap.Message,
		Progress: snap.Progress,
		State:    string(snap.State),
	}
	if err := writeWS(conn, hello); err != nil {
		return
	}

	events := hub.Subscribe(ctx, cursor)
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeWS(conn, api.FromEvent(evt)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, evt api.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(evt)
}
