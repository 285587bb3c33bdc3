package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"callhub/internal/auth"
	"callhub/internal/calls"
	"callhub/internal/history"
	"callhub/internal/presence"
	"callhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls    *calls.Manager
	History  *history.Service
	Presence *presence.Tracker
}

// --- Calls ---

// ActiveCall returns the caller's live session from the call table.
func (h Handlers) ActiveCall(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	s, err := h.Calls.ActiveFor(c.Request.Context(), userID)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active call"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": s})
}

func (h Handlers) CallHistory(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	page, err1 := queryInt(c, "page")
	limit, err2 := queryInt(c, "limit")
	if err := errors.Join(err1, err2); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page and limit must be integers"})
		return
	}
	out, err := h.History.History(c.Request.Context(), userID, page, limit, c.Query("callType"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CallStats(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	days, err := queryInt(c, "days")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
		return
	}
	out, err := h.History.Stats(c.Request.Context(), userID, days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCall(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	s, err := h.History.Get(c.Request.Context(), c.Param("callId"), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": s})
}

type qualityRequest struct {
	Quality string `json:"quality" binding:"required"`
}

// RateQuality stores a participant's rating; values are excellent, good, fair, poor.
func (h Handlers) RateQuality(c *gin.Context) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	var req qualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, err := h.History.RateQuality(c.Request.Context(), c.Param("callId"), userID, req.Quality)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": s})
}

// --- Presence ---

func (h Handlers) PresenceStatus(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": h.Presence.IsOnline(userID)})
}

func identity(c *gin.Context) (string, bool) {
	userID, err := auth.UserIDFromGin(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return userID, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// fail maps service errors to status codes. Unknown errors are logged and
// reported as 500 without detail.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, history.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this call"})
	case errors.Is(err, history.ErrNotFinished):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call has not finished"})
	case errors.Is(err, history.ErrInvalidRequest), errors.Is(err, calls.ErrInvalidQuality):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
