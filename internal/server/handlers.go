package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
)

// discoverResponse keeps the shape dashboard clients parse
type discoverResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Devices []reconcile.Device `json:"devices"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Machine Discovery Backend is running!"})
}

func (s *Server) handleDBCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("database connection check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Database connection failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Database connected successfully."})
}

func (s *Server) handleDiscoverDevices(c *gin.Context) {
	req := reconcile.Request{
		BroadcastIP: c.Query("broadcastIp"),
		Timeout:     parseTimeoutMillis(c.Query("timeout"), s.config.DefaultTimeout, s.config.MaxTimeout),
	}

	res, err := s.runner.RunCycle(c.Request.Context(), req)
	if err != nil {
		if reconcile.IsConfigurationError(err) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Could not determine broadcast IP address.",
			})
			return
		}
		s.log.Error("discovery failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to discover devices: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, discoverResponse{
		Success: true,
		Message: res.Message(),
		Devices: res.Devices,
	})
}

func (s *Server) handleListDevices(c *gin.Context) {
	records, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "devices": records})
}

func (s *Server) handleGetDevice(c *gin.Context) {
	rec, err := s.store.FindByAddress(c.Request.Context(), c.Param("ip"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Device not found."})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "device": rec})
	}
}

// parseTimeoutMillis reads a millisecond count. Anything that is not a
// positive integer yields fallback; counts above limit, including those too
// large to parse, yield limit.
func parseTimeoutMillis(raw string, fallback, limit time.Duration) time.Duration {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(raw, "-") {
		return limit
	}
	if err != nil || ms <= 0 {
		return fallback
	}
	if ms > int64(limit/time.Millisecond) {
		return limit
	}
	return time.Duration(ms) * time.Millisecond
}
