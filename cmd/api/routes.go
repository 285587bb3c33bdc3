package main

import (
	"database/sql"
	"net/http"
	"time"

	"callhub/internal/gateway"
	"callhub/internal/httpapi"
	"callhub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerPublicRoutes wires endpoints that authenticate on their own or not at all.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerPublicRoutes(r *gin.Engine, db *sql.DB, hub *gateway.Hub) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The websocket verifies the bearer token (header or ?token=) before upgrading.
	r.GET("/ws", hub.ServeWS)
}

// registerProtectedRoutes mounts the REST surface behind the access token middleware.
func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	v1 := r.Group("/v1")
	v1.Use(authMW)
	h.Mount(v1)
}
