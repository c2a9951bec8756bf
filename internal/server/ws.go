package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/aemassist/internal/observe"
)

// handleChatWS upgrades to a websocket and answers every text frame that
// holds a chat request with a chat response. Malformed frames get an error
// object and the connection stays open.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.origin == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{s.origin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		observe.Logger(r.Context()).Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Debug("server: websocket closed", "err", err)
			}
			return
		}

		var req chatRequest
		if typ != websocket.MessageText || json.Unmarshal(data, &req) != nil {
			if err := wsjson.Write(ctx, conn, map[string]string{"error": "invalid JSON message"}); err != nil {
				return
			}
			continue
		}

		req.normalize()
		var reply any
		if req.Message == "" {
			reply = map[string]string{"error": errNoMessage}
		} else {
			reply = s.chat(ctx, req)
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			log.Debug("server: websocket write failed", "err", err)
			return
		}
	}
}
