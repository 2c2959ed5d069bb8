package server

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/logger"
)

// Username length bounds, in characters.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// isValidUsername allows letters, digits and underscores, starting with a
// letter, with no consecutive underscores.
func isValidUsername(name string) bool {
	runes := []rune(name)
	if len(runes) < MinUsernameLength || len(runes) > MaxUsernameLength {
		return false
	}
	if !unicode.IsLetter(runes[0]) {
		return false
	}
	prevUnderscore := false
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prevUnderscore = false
		case r == '_':
			if prevUnderscore {
				return false
			}
			prevUnderscore = true
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if !isValidUsername(username) {
		writeError(c, apperrors.New(apperrors.CodeValidation,
			"username must be 3-20 letters, digits or underscores and start with a letter"))
		return
	}
	if res := s.nameFilter.Check(username); !res.Allowed {
		writeError(c, apperrors.New(apperrors.CodeValidation, res.Reason))
		return
	}
	pwConfig := s.cfg.Password
	if msg := pwConfig.ValidatePassword(req.Password); msg != "" {
		writeError(c, apperrors.WithMetadata(apperrors.CodeValidation, msg,
			map[string]string{"requirements": pwConfig.GetRequirementsText()}))
		return
	}

	ctx := c.Request.Context()
	var user *database.User
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		var err error
		user, err = q.CreateUser(ctx, username, req.Email, req.Password)
		return err
	})
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			writeError(c, apperrors.New(apperrors.CodeUsernameTaken, "that username is already taken"))
			return
		}
		writeError(c, err)
		return
	}

	logger.Audit(c.Request.Context(), "Account registered",
		"username", user.Username,
		"user_id", user.ID,
		"ip", clientIP(c.Request),
		"event", "account_register")

	s.respondWithToken(c, http.StatusCreated, user.Username)
}

func (s *Server) handleLogin(c *gin.Context) {
	ip := clientIP(c.Request)
	if err := s.loginGuard.Check(ip); err != nil {
		writeError(c, err)
		return
	}

	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.db.Queries().ValidateLogin(c.Request.Context(), strings.TrimSpace(req.Username), req.Password, ip)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidCredentials) {
			writeError(c, err)
			return
		}
		logger.InfoContext(c.Request.Context(), "Failed login attempt",
			"username", req.Username,
			"ip", ip,
			"event", "login_failed")
		if lockout := s.loginGuard.Fail(ip); lockout > 0 {
			logger.WarningContext(c.Request.Context(), "IP rate limited after failed logins",
				"ip", ip,
				"lockout_seconds", int(lockout.Seconds()),
				"event", "login_ratelimit")
			writeError(c, lockedOut(lockout))
			return
		}
		writeError(c, apperrors.New(apperrors.CodeInvalidCredentials, "invalid username or password"))
		return
	}

	s.loginGuard.Succeed(ip)
	logger.InfoContext(c.Request.Context(), "Successful login",
		"username", user.Username,
		"user_id", user.ID,
		"ip", ip,
		"event", "login_success")

	s.respondWithToken(c, http.StatusOK, user.Username)
}

func (s *Server) respondWithToken(c *gin.Context, status int, username string) {
	token, expires, err := s.tokens.Issue(username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, tokenResponse{Token: token, Username: username, ExpiresAt: expires})
}
