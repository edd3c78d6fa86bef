package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"depthscope/internal/depth"
	"depthscope/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleDepthWS streams a freshly resolved depth ladder on a fixed interval
// until the client disconnects. Compute failures are sent as error frames and
// the stream continues; only transport failures end it.
func (s *Server) handleDepthWS(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		if err := s.pushDepth(conn, req); err != nil {
			s.logger.Debug("websocket write failed", zap.String("pool", req.Pool), zap.Error(err))
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushDepth(conn *websocket.Conn, req depth.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	result, source, err := s.svc.Depth(ctx, req)
	if err != nil {
		var reqErr *model.RequestError
		if !errors.As(err, &reqErr) {
			reqErr = model.NewUpstreamUnavailable(err.Error())
		}
		return conn.WriteJSON(reqErr)
	}
	return conn.WriteJSON(depthResponse{DepthResult: result, Source: source})
}
