// Package ui serves the dashboard: the single-page shell, the upload and
// run endpoints, the SSE progress stream, and the table/plot JSON the page
// renders from.
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"rnadash/app"
	"rnadash/internal"
	"rnadash/internal/api"
	"rnadash/internal/config"
	"rnadash/internal/views"
)

//go:embed templates/* docs/*
var embeddedFiles embed.FS

// Server is the dashboard HTTP server.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	analysis  *app.AnalysisService
	views     *views.Service
	hub       *api.ProgressHub
	templates *template.Template
	logger    *internal.Logger
}

// NewServer wires the dashboard routes.
func NewServer(cfg *config.Config, analysis *app.AnalysisService, viewSvc *views.Service, hub *api.ProgressHub, logger *internal.Logger) (*Server, error) {
	gin.SetMode(cfg.Server.GinMode)

	templates, err := template.ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		router:    gin.Default(),
		cfg:       cfg,
		analysis:  analysis,
		views:     viewSvc,
		hub:       hub,
		templates: templates,
		logger:    logger,
	}
	s.router.SetHTMLTemplate(templates)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/help", s.handleHelp)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := s.router.Group("/api")
	{
		apiGroup.POST("/analysis/run", s.handleStartRun)
		apiGroup.POST("/analysis/cancel", s.handleCancelRun)
		apiGroup.GET("/analysis/status", s.handleStatus)
		apiGroup.GET("/analysis/events", s.hub.HandleSSE)

		apiGroup.GET("/results/table", s.handleTable)
		apiGroup.GET("/results/summary", s.handleSummary)
		apiGroup.GET("/results/export.csv", s.handleExportCSV)
		apiGroup.GET("/results/export.xlsx", s.handleExportXLSX)

		apiGroup.GET("/plots/volcano", s.handleVolcano)
		apiGroup.GET("/plots/heatmap", s.handleHeatmap)
		apiGroup.GET("/plots/pca", s.handlePCA)
		apiGroup.GET("/plots/distance", s.handleDistance)
		apiGroup.GET("/plots/ma", s.handleMA)
		apiGroup.GET("/plots/dispersion", s.handleDispersion)
	}
}

// Router exposes the gin engine for tests and for mounting.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the server on the configured port.
func (s *Server) Run() error {
	addr := ":" + s.cfg.Server.Port
	s.logger.Info("[Server] Dashboard listening on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"MaxUploadBytes": s.cfg.Upload.MaxUploadBytes,
	})
}
