package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps error categories onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, types.ErrCommandValidation):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PAD_400", message, err.Error()))
	case errors.Is(err, types.ErrDeviceCommunication):
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("PAD_502", message, err.Error()))
	default:
		s.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PAD_500", message, err.Error()))
	}
}

// GET /api/v1/status?quick=true
func (s *Server) getStatus(c *gin.Context) {
	quick := false
	if v := c.Query("quick"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("PAD_400", "Invalid quick parameter", err.Error()))
			return
		}
		quick = b
	}

	status, err := s.pad.GetStatus(c.Request.Context(), quick)
	if err != nil {
		s.writeError(c, "Failed to read status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/status/latest
func (s *Server) getLatestStatus(c *gin.Context) {
	status, ok := s.pad.LatestStatus()
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("PAD_404", "No status read yet", nil))
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/capabilities
func (s *Server) getCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, s.pad.Capabilities())
}

// POST /api/v1/commands/:name
func (s *Server) executeCommand(c *gin.Context) {
	cmd, err := pad.ParseCommand(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("PAD_404", "Unknown command", err.Error()))
		return
	}

	var req struct {
		Value any `json:"value"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("PAD_400", "Invalid request body", err.Error()))
			return
		}
	}

	value := ""
	switch v := req.Value.(type) {
	case nil:
	case string:
		value = v
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PAD_400", "Invalid request body", "value must be a string or number"))
		return
	}

	result, err := s.pad.Dispatch(c.Request.Context(), pad.CommandRequest{Command: cmd, Value: value})
	if err != nil {
		s.writeError(c, "Command execution failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /api/v1/polling
func (s *Server) getPolling(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": s.pad.Polling(),
		"stats":   s.pad.PollerStats(),
	})
}

// POST /api/v1/polling
func (s *Server) startPolling(c *gin.Context) {
	var req struct {
		IntervalSeconds *float64 `json:"interval_seconds"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("PAD_400", "Invalid request body", err.Error()))
			return
		}
	}

	interval := s.cfg.WalkingPad.PollingInterval
	if req.IntervalSeconds != nil {
		interval = time.Duration(*req.IntervalSeconds * float64(time.Second))
	}

	if err := s.pad.StartPolling(interval); err != nil {
		s.writeError(c, "Failed to start polling", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"running":          true,
		"interval_seconds": interval.Seconds(),
	})
}

// DELETE /api/v1/polling
func (s *Server) stopPolling(c *gin.Context) {
	s.pad.StopPolling()
	c.JSON(http.StatusOK, gin.H{"running": false})
}
