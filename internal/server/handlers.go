package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/engine"
)

// defaultHistoryLimit and maxHistoryLimit bound /api/boss/history.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type attackRequest struct {
	Damage *int `json:"damage" binding:"required"`
}

// attackResponse flattens the boss fields to the top level. On the
// defeating hit "rewards" carries the credit instead of the boss's reward
// table.
type attackResponse struct {
	*engine.BossView
	Damage        int                 `json:"damage"`
	Rewards       *engine.RewardDelta `json:"rewards,omitempty"`
	TimesDefeated int                 `json:"timesDefeated,omitempty"`
}

type selectResponse struct {
	Message string           `json:"message"`
	Boss    *engine.BossView `json:"boss"`
}

type createTaskRequest struct {
	Title   string `json:"title" binding:"required"`
	DueDate string `json:"dueDate"`
}

type createHabitRequest struct {
	Title      string `json:"title" binding:"required"`
	Frequency  string `json:"frequency"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handleMe(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := s.engine.Profile(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleActiveBoss(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := s.engine.ActiveBoss(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSelection(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	candidates, err := s.engine.SelectionCandidates(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

func (s *Server) handleSelectBoss(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := s.engine.SelectBoss(c.Request.Context(), username, c.Param("bossId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, selectResponse{Message: "Boss selected: " + view.Name, Boss: view})
}

func (s *Server) handleAttack(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	var req attackRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.engine.Attack(c.Request.Context(), username, *req.Damage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attackResponse{
		BossView:      result.Boss,
		Damage:        result.Damage,
		Rewards:       result.Rewards,
		TimesDefeated: result.TimesDefeated,
	})
}

func (s *Server) handleDefeatHistory(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, apperrors.New(apperrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.engine.DefeatHistory(c.Request.Context(), username, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleListTasks(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	tasks, err := s.engine.ListTasks(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := s.engine.CreateTask(c.Request.Context(), username, req.Title, req.DueDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	if err := s.engine.DeleteTask(c.Request.Context(), username, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	result, err := s.engine.CompleteTask(c.Request.Context(), username, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListHabits(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	habits, err := s.engine.ListHabits(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habits)
}

func (s *Server) handleCreateHabit(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	var req createHabitRequest
	if !bindJSON(c, &req) {
		return
	}
	habit, err := s.engine.CreateHabit(c.Request.Context(), username, req.Title, req.Frequency, req.Difficulty)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, habit)
}

func (s *Server) handleDeleteHabit(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	if err := s.engine.DeleteHabit(c.Request.Context(), username, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCompleteHabit(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	result, err := s.engine.CompleteHabit(c.Request.Context(), username, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleResetHabit(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	habit, err := s.engine.ResetHabit(c.Request.Context(), username, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habit)
}
