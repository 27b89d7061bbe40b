package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"encoding/json"

	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/metrics"
	"github.com/gin-gonic/gin"
)

// protocolVersion answers GET /mpctrl/version — spec.md §4.10/§6 names
// it as a separate plain-text endpoint, not part of the status schema.
const protocolVersion = "mixplay/1.0"

// statusQuery is the JSON payload spec.md §4.10 has GET /mpctrl/status
// carry in the raw query string itself (the mixplay web client's
// `fetch('/mpctrl/status?' + JSON.stringify(...))` quirk), not a
// standard key=value query or a request body.
type statusQuery struct {
	Cmd      int `json:"cmd"`
	ClientID int `json:"clientid"`
}

// cmdQuery is the same quirk for POST /mpctrl/cmd.
type cmdQuery struct {
	Cmd      int     `json:"cmd"`
	Arg      *string `json:"arg"`
	ClientID int     `json:"clientid"`
}

// parseQueryJSON unescapes and unmarshals the request's raw query
// string into dst, since it's JSON text rather than form-encoded pairs.
func parseQueryJSON(rawQuery string, dst any) error {
	decoded, err := url.QueryUnescape(rawQuery)
	if err != nil {
		decoded = rawQuery
	}
	return json.Unmarshal([]byte(decoded), dst)
}

// handleStatus serves GET /mpctrl/status. clientid == -1 switches into
// the update-subscription mode (subscribe.go); otherwise it's a single
// poll, answered with exactly one trickled message per spec.md §3.
func (s *Server) handleStatus(c *gin.Context) {
	var q statusQuery
	if err := parseQueryJSON(c.Request.URL.RawQuery, &q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed status query"})
		return
	}

	if q.ClientID == -1 {
		s.subscribe(c, q.Cmd)
		return
	}

	msg := s.messageFor(q.ClientID)
	resp := s.buildStatus(q.Cmd, s.player.Snapshot(), msg)
	c.JSON(http.StatusOK, resp)
}

// handleCmd serves POST /mpctrl/cmd: decode the query-embedded command,
// post it to the shared register, and — for search, which the caller
// expects to see results from synchronously — wait on the reader's
// SearchState the way the REDESIGN FLAGS in spec.md §9 intend to replace
// the original's polling loop.
func (s *Server) handleCmd(c *gin.Context) {
	var q cmdQuery
	if err := parseQueryJSON(c.Request.URL.RawQuery, &q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed cmd query"})
		return
	}

	req := command.Request{
		Cmd:      command.Code(q.Cmd),
		ClientID: q.ClientID,
		RemoteIP: c.ClientIP(),
	}
	if q.Arg != nil {
		req.Arg = *q.Arg
		req.HasArg = true
	}

	status := s.player.Status()
	if err := s.reg.Post(req, status); err != nil {
		if errors.Is(err, command.ErrBusy) {
			metrics.RecordCommandRejected()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "player is busy"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if command.Code(q.Cmd).Base() == command.CmdSearch {
		titles, artists, ok := s.player.SearchState().Wait(searchTimeout)
		if !ok {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "search timed out"})
			return
		}
		albums, albart := albumsAndAlbart(titles)
		c.JSON(http.StatusOK, gin.H{
			"titles":  newTitleDTOs(titles),
			"artists": artists,
			"albums":  albums,
			"albart":  albart,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// handleTitleDownload serves GET /mpctrl/title/:id: the raw MP3 file as
// an attachment, grounded on the teacher's playlist download handler's
// Content-Disposition sanitization (internal/radio/handler/playlist.go).
func (s *Server) handleTitleDownload(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	t := s.cat.ByKey(id)
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return
	}

	filename := sanitizeFilename(t.Display + ".mp3")
	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.File(filepath.Join(s.cfg.MusicDir, t.Path))
}

// handleTitleInfo serves GET /mpctrl/title/:id/info: plain "artist -
// title" text, no JSON envelope.
func (s *Server) handleTitleInfo(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title id"})
		return
	}

	t := s.cat.ByKey(id)
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "title not found"})
		return
	}
	c.String(http.StatusOK, t.Display)
}

// handleVersion serves GET /mpctrl/version.
func (s *Server) handleVersion(c *gin.Context) {
	c.String(http.StatusOK, protocolVersion)
}

// sanitizeFilename strips path separators so a title's artist/title text
// can't be used to traverse outside the intended download filename.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}
