package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires the five endpoints spec.md §4.10/§6 names under
// /mpctrl, grounded on the teacher's handler package route layout
// (internal/radio/handler + its router setup) but serving mixplay's own
// protocol instead of the teacher's playlist/track API. /metrics exposes
// the ambient Prometheus instrumentation (internal/metrics), grounded on
// tomtom215-cartographus's promhttp.Handler() mount.
func (s *Server) registerRoutes() {
	grp := s.engine.Group("/mpctrl")
	grp.GET("/status", s.handleStatus)
	grp.POST("/cmd", s.handleCmd)
	grp.GET("/title/:id", s.handleTitleDownload)
	grp.GET("/title/:id/info", s.handleTitleInfo)
	grp.GET("/version", s.handleVersion)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
