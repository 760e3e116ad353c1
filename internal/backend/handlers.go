package backend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sadopc/taskr/internal/api"
)

const (
	userIDKey    = "userID"
	maxTitleSize = 500
)

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing bearer token"})
			return
		}
		userID, err := s.auth.ParseAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or expired token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrBadCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, ErrDuplicate):
		status, msg = http.StatusConflict, "already exists"
	default:
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, api.ErrorResponse{Error: msg})
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ============================================================
// Auth
// ============================================================

func (s *Server) handleRegister(c *gin.Context) {
	var req api.RegisterRequest
	if !s.bind(c, &req) {
		return
	}
	resp, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req api.LoginRequest
	if !s.bind(c, &req) {
		return
	}
	resp, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req api.RefreshRequest
	if !s.bind(c, &req) {
		return
	}
	resp, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSocial(c *gin.Context) {
	var req api.SocialLoginRequest
	if !s.bind(c, &req) {
		return
	}
	resp, err := s.auth.Social(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogout(c *gin.Context) {
	var req api.RefreshRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	u, err := s.auth.User(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ============================================================
// Tasks
// ============================================================

func validateTask(t api.TaskData) error {
	title := strings.TrimSpace(t.Title)
	switch {
	case title == "":
		return errors.New("title is required")
	case len(title) > maxTitleSize:
		return errors.New("title is too long")
	case t.TimeStart != 0 && t.TimeEnd != 0 && t.TimeEnd < t.TimeStart:
		return errors.New("timeEnd before timeStart")
	}
	return nil
}

func (s *Server) handleListTasks(c *gin.Context) {
	var since int64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "since must be unix millis"})
			return
		}
		since = n
	}
	tasks, err := s.repo.ListTasks(c.Request.Context(), c.GetString(userIDKey), since)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var t api.TaskData
	if !s.bind(c, &t) {
		return
	}
	if err := validateTask(t); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = s.now().UnixMilli()
	}
	stored, err := s.repo.PutTask(c.Request.Context(), c.GetString(userIDKey), t)
	if errors.Is(err, ErrStale) {
		c.JSON(http.StatusConflict, stored)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.repo.GetTask(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// handlePutTask upserts by id. A write older than the stored row gets 409
// with the stored row as the body.
func (s *Server) handlePutTask(c *gin.Context) {
	var t api.TaskData
	if !s.bind(c, &t) {
		return
	}
	if t.ID != "" && t.ID != c.Param("id") {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "id does not match path"})
		return
	}
	t.ID = c.Param("id")
	if err := validateTask(t); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = s.now().UnixMilli()
	}
	stored, err := s.repo.PutTask(c.Request.Context(), c.GetString(userIDKey), t)
	if errors.Is(err, ErrStale) {
		c.JSON(http.StatusConflict, stored)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	err := s.repo.DeleteTask(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================================
// Groups
// ============================================================

func (s *Server) handleListGroups(c *gin.Context) {
	groups, err := s.repo.ListGroups(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (s *Server) handlePutGroup(c *gin.Context) {
	var g api.GroupData
	if !s.bind(c, &g) {
		return
	}
	if g.ID != "" && g.ID != c.Param("id") {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "id does not match path"})
		return
	}
	g.ID = c.Param("id")
	if strings.TrimSpace(g.Name) == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "name is required"})
		return
	}
	if g.UpdatedAt == 0 {
		g.UpdatedAt = s.now().UnixMilli()
	}
	stored, err := s.repo.PutGroup(c.Request.Context(), c.GetString(userIDKey), g)
	if errors.Is(err, ErrStale) {
		c.JSON(http.StatusConflict, stored)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	err := s.repo.DeleteGroup(c.Request.Context(), c.GetString(userIDKey), c.Param("id"), s.now())
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
