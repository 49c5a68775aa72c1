// Package statusapi is the read-only admin HTTP surface for a running
// supervisor pool: health, unit listing/state, and log tailing. It is the
// "web" half of the original unitd-webrun wrapper, narrowed to
// observability — no control endpoints, no VNC/web-proxy composition.
//
// Grounded on cmd/zmux-server/main.go's gin wiring (ZapLogger middleware,
// gin-contrib/cors) and internal/http/middleware/request_id.go.
package statusapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/unitd/internal/statusapi/middleware"
	"github.com/edirooss/unitd/internal/supervisor"
	"github.com/edirooss/unitd/internal/unitconfig"
)

// WebrunInfo is the read-only [Webrun] metadata surfaced at GET /webrun,
// restoring the original unitd-webrun tool's config visibility without the
// core consuming it.
type WebrunInfo struct {
	DisplayGeometry string `json:"display_geometry"`
	WebPort         int    `json:"web_port"`
}

// Server wraps a gin.Engine serving the status API for one pool.
type Server struct {
	engine *gin.Engine
	pool   *supervisor.Pool
	webrun unitconfig.WebrunSection
}

// New builds a Server for pool. webrun, if the loaded unit file carried a
// [Webrun] section, is surfaced verbatim at GET /webrun.
func New(log *zap.Logger, pool *supervisor.Pool, webrun unitconfig.WebrunSection) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.ZapLogger(log.Named("statusapi")))
	engine.Use(cors.New(cors.Config{
		AllowMethods:     []string{http.MethodGet},
		AllowHeaders:     []string{"X-Request-ID"},
		AllowAllOrigins:  true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	s := &Server{engine: engine, pool: pool, webrun: webrun}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/units", s.handleListUnits)
	s.engine.GET("/units/:name/log", s.handleUnitLog)
	s.engine.GET("/webrun", s.handleWebrun)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type unitSummary struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Started    *bool  `json:"started,omitempty"`
	Terminated *int   `json:"terminated,omitempty"`
	Stopped    bool   `json:"stopped"`
}

func summarize(u *supervisor.ProcessUnit) unitSummary {
	sum := unitSummary{Name: u.Name(), State: u.State().String()}
	if v, ok := u.Started.Resolved(); ok {
		sum.Started = &v
	}
	if v, ok := u.Terminated.Resolved(); ok {
		sum.Terminated = &v
	}
	_, sum.Stopped = u.Stopped.Resolved()
	return sum
}

func (s *Server) handleListUnits(c *gin.Context) {
	units := s.pool.Units()
	out := make([]unitSummary, 0, len(units))
	for _, u := range units {
		out = append(out, summarize(u))
	}
	c.JSON(http.StatusOK, gin.H{"units": out})
}

func (s *Server) findUnit(name string) *supervisor.ProcessUnit {
	for _, u := range s.pool.Units() {
		if u.Name() == name {
			return u
		}
	}
	return nil
}

func (s *Server) handleUnitLog(c *gin.Context) {
	u := s.findUnit(c.Param("name"))
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unit not found"})
		return
	}
	lines := u.Logs(0)
	c.JSON(http.StatusOK, gin.H{"unit": u.Name(), "lines": lines})
}

func (s *Server) handleWebrun(c *gin.Context) {
	c.JSON(http.StatusOK, WebrunInfo{
		DisplayGeometry: s.webrun.DisplayGeometry,
		WebPort:         s.webrun.WebPort,
	})
}
