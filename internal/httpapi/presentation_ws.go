package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callgate/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 120 * time.Second
	wsPingPeriod = 30 * time.Second
)

func (s *Server) handlePresentationWS(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.hub.Register(clientID)
	s.observeEvent("ws_connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.Send():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					s.observeWriteError("write_json")
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					s.observeWriteError("ping")
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.hub.SendError(client, "invalid_client_message", err.Error())
			continue
		}
		s.hub.Handle(client, parsed)
	}

	s.hub.Unregister(client)
	<-writerDone
	s.observeEvent("ws_disconnected")
}

func (s *Server) observeEvent(event string) {
	if s.metrics != nil {
		s.metrics.CallEvents.WithLabelValues(event).Inc()
	}
}

func (s *Server) observeWriteError(op string) {
	if s.metrics != nil {
		s.metrics.WSWriteErrors.WithLabelValues(op).Inc()
	}
}
