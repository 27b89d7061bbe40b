package httpapi

import (
	"net/http"
	"time"

	"github.com/foxbow/mixplay/internal/metrics"
	"github.com/gin-gonic/gin"
)

// subscribeTick is how often an update-subscription connection receives
// a fresh status push — spec.md §4.10's REDESIGN FLAGS replace the
// original's long-poll-per-event design with a simple periodic push.
const subscribeTick = 1 * time.Second

// subscribeIdleLimit is the number of consecutive ticks with nothing new
// to report before the connection is closed from this end, so an
// abandoned subscriber (network drop without a clean FIN) doesn't pin a
// client id and a goroutine forever.
const subscribeIdleLimit = 10

// subscribe implements GET /mpctrl/status?clientid=-1: allocate a new
// client id and stream one status event per tick until the client
// disconnects or goes idle for too long, mirroring mpserver.c's
// "clientid == -1 allocates an update-subscription" behavior without its
// thread-per-connection model. Pushed as server-sent events via Gin's
// SSEvent, wiring in the gin-contrib/sse dependency gin already pulls
// transitively, rather than hand-rolling a chunked-JSON stream.
func (s *Server) subscribe(c *gin.Context, flags int) {
	cid := s.allocClientID()
	metrics.ClientConnected()
	defer metrics.ClientDisconnected()

	flusher, canFlush := c.Writer.(http.Flusher)

	ticker := time.NewTicker(subscribeTick)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			msg := s.messageFor(cid)
			if msg == "" {
				idle++
				if idle >= subscribeIdleLimit {
					return
				}
			} else {
				idle = 0
			}

			resp := s.buildStatus(flags, s.player.Snapshot(), msg)
			c.SSEvent("status", resp)
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
