package server

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hzprom "github.com/hertz-contrib/monitor-prometheus"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/engine"
	"github.com/streamwatch/streamwatch/internal/pkg/logs"
	promreg "github.com/streamwatch/streamwatch/internal/pkg/prometheus"
)

// Server is the HTTP control surface: schedule CRUD, force refresh,
// download listing and manual stop. All state lives in the engine and
// the download tracker; handlers are thin.
type Server struct {
	httpServer *hzServer.Hertz
	engine     *engine.Engine
	coord      *browser.Coordinator
	tracker    *browser.Tracker
	apiKey     string
}

func New(cfg config.ServerConfig, eng *engine.Engine, coord *browser.Coordinator, tracker *browser.Tracker) *Server {
	bind := cfg.Bind
	if bind == "" {
		bind = "0.0.0.0:8591"
	}
	metricsBind := cfg.MetricsBind
	if metricsBind == "" {
		metricsBind = "127.0.0.1:9591"
	}

	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(30*time.Second),
		hzServer.WithWriteTimeout(30*time.Second),
		hzServer.WithExitWaitTime(5*time.Second),
		hzServer.WithTracer(hzprom.NewServerTracer(
			metricsBind,
			"/metrics",
			hzprom.WithRegistry(promreg.GetRegistry()),
			hzprom.WithEnableGoCollector(true),
		)),
	)

	s := &Server{
		httpServer: hzSvr,
		engine:     eng,
		coord:      coord,
		tracker:    tracker,
		apiKey:     cfg.APIKey,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start(ctx context.Context) {
	go s.httpServer.Spin()
	logs.CtxInfo(ctx, "[server] http control surface started")
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logs.CtxWarn(ctx, "[server] shutdown http server error: %v", err)
	}
}

func (s *Server) registerRoutes() {
	s.httpServer.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	v1 := s.httpServer.Group("/api/v1", s.auth)
	v1.GET("/schedules", s.listSchedules)
	v1.POST("/schedules", s.addSchedule)
	v1.GET("/schedules/:id", s.getSchedule)
	v1.PUT("/schedules/:id", s.updateSchedule)
	v1.DELETE("/schedules/:id", s.removeSchedule)
	v1.POST("/schedules/refresh", s.refreshSchedules)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/downloads", s.listDownloads)
	v1.POST("/downloads/:id/stop", s.stopDownload)
}

// auth enforces the optional bearer token. With no api_key configured
// every caller is accepted.
func (s *Server) auth(ctx context.Context, c *app.RequestContext) {
	if s.apiKey == "" {
		c.Next(ctx)
		return
	}

	header := string(c.GetHeader("Authorization"))
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header || token != s.apiKey {
		c.JSON(consts.StatusUnauthorized, utils.H{"error": "invalid or missing token"})
		c.Abort()
		return
	}
	c.Next(ctx)
}

func (s *Server) listSchedules(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"schedules": s.engine.List()})
}

func (s *Server) getSchedule(ctx context.Context, c *app.RequestContext) {
	sched, err := s.engine.Get(c.Param("id"))
	if err != nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, sched)
}

func (s *Server) addSchedule(ctx context.Context, c *app.RequestContext) {
	var req engine.AddRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}

	sched, err := s.engine.Add(ctx, req)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusCreated, sched)
}

func (s *Server) updateSchedule(ctx context.Context, c *app.RequestContext) {
	var req engine.AddRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}

	sched, err := s.engine.Update(ctx, c.Param("id"), req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, sched)
}

func (s *Server) removeSchedule(ctx context.Context, c *app.RequestContext) {
	if err := s.engine.Remove(ctx, c.Param("id")); err != nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "removed"})
}

func (s *Server) refreshSchedules(ctx context.Context, c *app.RequestContext) {
	n := s.engine.Refresh(ctx)
	c.JSON(consts.StatusOK, utils.H{"refreshed": n})
}

func (s *Server) listSessions(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"sessions": s.coord.States()})
}

func (s *Server) listDownloads(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"downloads": s.tracker.List()})
}

func (s *Server) stopDownload(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := s.engine.StopDownload(ctx, id); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "stopped", "id": id})
}
