package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/auth"
	"github.com/unbreakk1/Questify/internal/logger"
)

// requestIDHeader carries the id that ties a response to its log records.
const requestIDHeader = "X-Request-ID"

// requestLogger tags the request context with a request id and logs the
// outcome once the handlers are done.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithAttrs(c.Request.Context(), "request_id", id))

		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP(c.Request),
		}
		if status >= http.StatusInternalServerError {
			logger.WarningContext(c.Request.Context(), "Request completed with server error", attrs...)
			return
		}
		logger.DebugContext(c.Request.Context(), "Request completed", attrs...)
	}
}

// cors answers preflight requests and reflects allowed origins.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.cfg.CORS.IsOriginAllowed(origin, c.Request.Host) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAuth rejects requests without a valid bearer token and stores the
// token's username on the request context. With allowQuery the token may
// also come from the "token" query parameter, since browsers cannot set
// headers on a WebSocket handshake.
func (s *Server) requireAuth(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		claims, err := s.tokens.Parse(token)
		if err != nil {
			writeError(c, err)
			return
		}
		ctx := auth.WithUsername(c.Request.Context(), claims.Username)
		c.Request = c.Request.WithContext(logger.WithAttrs(ctx, "user", claims.Username))
		c.Next()
	}
}

// throttle limits how many state-changing calls one user can make in the
// configured window. Reads are never throttled.
func (s *Server) throttle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		username, ok := currentUser(c)
		if !ok {
			return
		}
		res := s.actions.Check(strings.ToLower(username))
		if !res.Allowed {
			logger.WarningContext(c.Request.Context(), "Throttled user actions", "path", c.Request.URL.Path)
			writeError(c, apperrors.WithMetadata(apperrors.CodeRateLimited, res.Reason,
				map[string]string{"retryAfterSeconds": strconv.Itoa(res.WaitSeconds)}))
			return
		}
		c.Next()
	}
}

// currentUser returns the authenticated username. Handlers behind
// requireAuth always have one.
func currentUser(c *gin.Context) (string, bool) {
	username, ok := auth.UsernameFromContext(c.Request.Context())
	if !ok {
		writeError(c, apperrors.New(apperrors.CodeUnauthenticated, "not authenticated"))
	}
	return username, ok
}
