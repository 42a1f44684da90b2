package api

import (
	"context"
	"net/http"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/utils"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWebsocket upgrades the connection and streams snapshots narrowed to
// the buyers in the query until either side goes away.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	buyers := utils.SplitList(r.URL.Query().Get("buyers"))
	if err := utils.ValidateAddresses(buyers, s.opts.MaxBuyers); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Warn().Err(err).Str("component", "api").Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().
		Str("component", "api").
		Str("remote", r.RemoteAddr).
		Strs("buyers", buyers).
		Logger()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// The client never sends anything we act on; reading detects disconnects
	// and processes control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snapshot model.Snapshot) error {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	if err := s.streamer.Stream(ctx, buyers, send); err != nil {
		logger.Warn().Err(err).Msg("snapshot stream ended with error")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream failed"),
			time.Now().Add(time.Second))
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
