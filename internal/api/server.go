package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/collector"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the presentation layer: it renders the collector's snapshot as a
// dashboard and exposes JSON and diagnostic endpoints. It only ever sees
// snapshot copies; it never mutates collector state.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	collector *collector.Collector
	db        *storage.Database
	port      int
	log       *zap.Logger
}

type ServerConfig struct {
	Port      int
	Collector *collector.Collector
	Database  *storage.Database
	Logger    *zap.Logger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		router:    router,
		collector: cfg.Collector,
		db:        cfg.Database,
		port:      cfg.Port,
		log:       log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.SetHTMLTemplate(dashboardTemplate)

	s.router.GET("/", s.dashboardHandler)
	s.router.GET("/data", s.dataHandler)
	s.router.GET("/raw", s.rawHandler)
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.dataHandler)
		api.GET("/readings", s.readingsHandler)
		api.GET("/stats/daily", s.dailyStatsHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.log.Info("API server starting", zap.Int("port", s.port))
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// dataHandler returns the current snapshot copy as JSON.
func (s *Server) dataHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}

// rawHandler performs an on-demand register block read for diagnostics.
func (s *Server) rawHandler(c *gin.Context) {
	regs, err := s.collector.ReadRawBlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp":   time.Now(),
		"regs_80_119": regs,
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	snap := s.collector.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"inverter_connected": snap.InverterConnected,
		"collecting":         s.collector.IsCollecting(),
		"data_quality":       snap.DQText,
		"timestamp":          time.Now(),
	})
}

func (s *Server) readingsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "readings archive disabled"})
		return
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		readings, err := s.db.GetReadingsByRange(from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.db.GetReadingsWithLimit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) dailyStatsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "readings archive disabled"})
		return
	}

	dateStr := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
		return
	}

	stats, err := s.db.GetDailyStats(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
