package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"keepkeycore/internal/hostdiag"
	"keepkeycore/internal/registry"
)

// healthResponse mirrors the teacher's HealthResponse shape
// (cmd/driver/hasher-host/main.go), generalized from ASIC chip
// count/connection health to attached-device canonical ids.
type healthResponse struct {
	Status  string   `json:"status"`
	Uptime  string   `json:"uptime"`
	Devices []string `json:"devices"`
}

// newHTTPRouter builds the diagnostics surface that runs alongside the
// gRPC bridge, the same way the teacher's orchestrator exposes
// /healthz and /metrics next to its inference API. This core has no
// metrics/hashrate equivalent (spec Non-goals exclude a metrics
// layer), so the second endpoint exposes host process diagnostics
// instead (internal/hostdiag), the same data device_busy errors
// already carry.
func newHTTPRouter(reg *registry.Registry, startTime time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Devices: reg.CanonicalIDs(),
		})
	})

	router.GET("/hostdiag", func(c *gin.Context) {
		c.JSON(http.StatusOK, hostdiag.Collect())
	})

	return router
}
