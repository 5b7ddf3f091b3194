// Package api exposes the synchronized model over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hipsterbrown/servopid/model"
	"github.com/hipsterbrown/servopid/servopid"
	"github.com/hipsterbrown/servopid/transports"
)

// Config holds the dependencies of a Server.
type Config struct {
	Engine *servopid.Engine
	App    *model.App

	// Dialer lists the targets offered by /targets.
	Dialer transports.Dialer

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger zerolog.Logger
}

// Server routes HTTP requests to the model and engine. Every mutation runs
// on the engine goroutine through Engine.Invoke.
type Server struct {
	engine   *servopid.Engine
	app      *model.App
	dialer   transports.Dialer
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	s := &Server{
		engine:   cfg.Engine,
		app:      cfg.App,
		dialer:   cfg.Dialer,
		gatherer: cfg.Gatherer,
		log:      cfg.Logger,
		router:   router,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.router.GET("/targets", s.targets)

	s.router.GET("/servos", s.listServos)
	s.router.GET("/servos/:id", s.getServo)
	s.router.GET("/servos/:id/series", s.getSeries)
	s.router.PUT("/servos/:id/params/:param", s.setParam)

	s.router.GET("/globals", s.getGlobals)
	s.router.PUT("/globals/:var", s.setGlobal)

	s.router.PUT("/pid", s.setPid)
	s.router.PUT("/poll", s.setPoll)
	s.router.PUT("/target", s.setTarget)

	s.router.POST("/commands/:name", s.command)
}

type valueRequest struct {
	Value *float32 `json:"value" binding:"required"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type targetRequest struct {
	Target string `json:"target"`
}

type servoView struct {
	ID        int             `json:"id"`
	Params    model.Params    `json:"params"`
	Telemetry model.Telemetry `json:"telemetry"`
}

func viewOf(ch *model.Channel) servoView {
	return servoView{ID: ch.ID(), Params: ch.Params(), Telemetry: ch.Telemetry()}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.appeared).String(),
		"target":      s.app.Target(),
		"connected":   s.app.Connected(),
		"phase":       s.engine.Phase().String(),
		"pid_enabled": s.app.PidEnabled(),
		"polling":     s.app.PollTelemetry(),
		"loop_timing": s.app.LoopTiming(),
	})
}

func (s *Server) targets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.dialer.Targets()})
}

func (s *Server) listServos(c *gin.Context) {
	channels := s.app.Channels()
	out := make([]servoView, 0, len(channels))
	for _, ch := range channels {
		out = append(out, viewOf(ch))
	}
	c.JSON(http.StatusOK, gin.H{"servos": out})
}

// channel resolves the :id parameter, writing the error response itself.
func (s *Server) channel(c *gin.Context) (*model.Channel, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid servo id"})
		return nil, false
	}
	ch, ok := s.app.Channel(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "servo not found"})
		return nil, false
	}
	return ch, true
}

func (s *Server) getServo(c *gin.Context) {
	ch, ok := s.channel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(ch))
}

func (s *Server) getSeries(c *gin.Context) {
	ch, ok := s.channel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ch.Series())
}

func (s *Server) setParam(c *gin.Context) {
	ch, ok := s.channel(c)
	if !ok {
		return
	}
	info, ok := servopid.LookupServoParam(c.Param("param"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "unknown parameter",
			"params": servopid.ListServoParams(),
		})
		return
	}

	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var setErr error
	if !s.invoke(c, func() { setErr = ch.SetParam(info.Field, *req.Value) }) {
		return
	}
	if setErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": setErr.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(ch))
}

func (s *Server) getGlobals(c *gin.Context) {
	g := s.app.Globals()
	c.JSON(http.StatusOK, gin.H{"globals": g.Map()})
}

func (s *Server) setGlobal(c *gin.Context) {
	v, ok := model.ParseGlobalVar(c.Param("var"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown global variable"})
		return
	}

	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.invoke(c, func() { s.app.SetGlobal(v, *req.Value) }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"var": v.String(), "value": s.app.Global(v)})
}

func (s *Server) setPid(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.invoke(c, func() { s.app.SetPidEnabled(*req.Enabled) }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"pid_enabled": s.app.PidEnabled()})
}

func (s *Server) setPoll(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.invoke(c, func() { s.app.SetPollTelemetry(*req.Enabled) }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"polling": s.app.PollTelemetry()})
}

func (s *Server) setTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.invoke(c, func() { s.app.SetTarget(req.Target) }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"target":    s.app.Target(),
		"connected": s.app.Connected(),
	})
}

func (s *Server) command(c *gin.Context) {
	name := c.Param("name")

	var run func() error
	switch name {
	case "save-eeprom":
		run = s.engine.SaveEEPROM
	case "load-eeprom":
		run = func() error {
			if err := s.engine.LoadEEPROM(); err != nil {
				return err
			}
			s.engine.RetrieveAll()
			return nil
		}
	case "reset-to-default":
		run = s.engine.ResetToDefault
	case "calibrate":
		run = s.engine.CalibrateAnalogInput
	case "refresh":
		run = func() error {
			s.engine.RetrieveAll()
			return nil
		}
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown command"})
		return
	}

	if err := run(); err != nil {
		s.log.Error().Err(err).Str("command", name).Msg("Command failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "command": name})
}

// invoke runs fn on the engine goroutine, writing a 503 if the engine is
// closed.
func (s *Server) invoke(c *gin.Context, fn func()) bool {
	if err := s.engine.Invoke(fn); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, servopid.ErrEngineClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return false
	}
	return true
}
