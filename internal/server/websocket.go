package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/logger"
)

// handleUserStatsSocket upgrades the request and subscribes it to the
// authenticated user's stat updates for the life of the connection.
func (s *Server) handleUserStatsSocket(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	ip := clientIP(c.Request)

	release, ok := s.connLimiter.Acquire(ip)
	if !ok {
		logger.Warning("WebSocket connection rejected - limit exceeded",
			"remote_addr", c.Request.RemoteAddr,
			"client_ip", ip)
		writeError(c, apperrors.New(apperrors.CodeRateLimited, "too many connections, try again later"))
		return
	}
	defer release()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.Warning("WebSocket upgrade failed", "client_ip", ip, "error", err)
		return
	}
	s.hub.Serve(conn, username, s.cfg.WebSocket.MaxMessageSize)
}
