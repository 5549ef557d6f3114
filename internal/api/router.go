// Package api is foreman's JSON-over-HTTP surface: a thin gin router
// over the supervisor's public operations. Agent handlers go through
// supervisor methods, each of which takes the supervisor's single
// mutex for its own step (ListAgents' refresh and read are two separate
// steps). Project handlers call the state store directly and take no
// supervisor lock. There is no additional locking here.
package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Version is reported by GET /api/health.
const Version = "0.1.0"

// SetupRouter configures all foreman API routes. disableRequestLogging
// skips the logrus request-logging middleware (used by tests).
func SetupRouter(h *Handlers, disableRequestLogging bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	if !disableRequestLogging {
		r.Use(logrusMiddleware())
	}

	api := r.Group("/api")
	api.GET("/health", h.GetHealth)
	api.GET("/agents", h.ListAgents)
	api.GET("/agents/:id", h.GetAgent)
	api.POST("/agents", h.CreateAgent)
	api.DELETE("/agents/:id", h.DeleteAgent)
	api.POST("/agents/:id/send", h.SendAgentInput)
	api.GET("/projects", h.ListProjects)
	api.POST("/projects", h.CreateProject)
	api.DELETE("/projects/:id", h.DeleteProject)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Next()
	}
}

// logrusMiddleware logs one line per request, matching the
// "METHOD path status latency" shape used across the pack.
func logrusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}

		start := time.Now()
		c.Next()
		latency := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))

		status := c.Writer.Status()
		msg := fmt.Sprintf("%s %s %d %dms", c.Request.Method, path, status, latency)
		switch {
		case len(c.Errors) > 0:
			logrus.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= http.StatusInternalServerError:
			logrus.Error(msg)
		case status >= http.StatusBadRequest:
			logrus.Warn(msg)
		default:
			logrus.Info(msg)
		}
	}
}
