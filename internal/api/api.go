package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xDracarys/lfs-builder/internal/config"
	"github.com/0xDracarys/lfs-builder/internal/engine"
	"github.com/0xDracarys/lfs-builder/internal/iso"
	"github.com/0xDracarys/lfs-builder/internal/jobs"
	"github.com/0xDracarys/lfs-builder/internal/models"
	"github.com/0xDracarys/lfs-builder/internal/persist"
)

// Server holds the API server components
type Server struct {
	config      *config.Config
	engine      *engine.Engine
	bridge      *persist.Bridge
	coordinator *iso.Coordinator
	tracker     *jobs.Tracker
	logger      *slog.Logger
	router      *gin.Engine
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, eng *engine.Engine, bridge *persist.Bridge, coordinator *iso.Coordinator, tracker *jobs.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		engine:      eng,
		bridge:      bridge,
		coordinator: coordinator,
		tracker:     tracker,
		logger:      logger.With("component", "api"),
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.Default()
	s.setupRoutes()

	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	isoGroup := s.router.Group("/api/iso")
	{
		isoGroup.POST("/generate", s.actorRequired(), s.handleIsoGenerate)
		isoGroup.GET("/status/:job_id", s.handleIsoStatus)
		isoGroup.GET("/download/:job_id", s.handleIsoDownload)
		isoGroup.GET("/jobs", s.handleIsoJobs)
		isoGroup.GET("/metadata", s.handleIsoMetadata)
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/configs", s.actorRequired(), s.handleCreateConfig)
		v1.GET("/configs", s.handleListConfigs)
		v1.GET("/configs/:id", s.handleGetConfig)
		v1.DELETE("/configs/:id", s.actorRequired(), s.handleDeleteConfig)

		v1.POST("/build/start", s.actorRequired(), s.handleBuildStart)
		v1.GET("/build", s.handleBuildState)
		v1.GET("/build/logs", s.handleBuildLogs)
		v1.POST("/build/toggle", s.actorRequired(), s.handleBuildToggle)
		v1.POST("/build/reset", s.actorRequired(), s.handleBuildReset)
		v1.POST("/build/input", s.actorRequired(), s.handleBuildInput)
		v1.POST("/build/input/skip", s.actorRequired(), s.handleBuildInputSkip)

		v1.GET("/builds", s.handleListBuilds)
		v1.GET("/builds/:id", s.handleGetBuild)
		v1.GET("/builds/:id/steps", s.handleGetBuildSteps)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.ServerHost, s.config.ServerPort)
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

const actorKey = "actor"

// actorRequired resolves the acting identity for mutations. With a build key
// configured, requests must present it in X-Build-Key; without one, the
// deployment is treated as single-user local.
func (s *Server) actorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.BuildKey == "" {
			c.Set(actorKey, models.Actor{ID: "local", Name: "local user"})
			c.Next()
			return
		}

		if c.GetHeader("X-Build-Key") != s.config.BuildKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(actorKey, models.Actor{ID: "build-key", Name: "build key holder"})
		c.Next()
	}
}

func (s *Server) actor(c *gin.Context) models.Actor {
	if value, ok := c.Get(actorKey); ok {
		if actor, ok := value.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleIsoGenerate handles POST /api/iso/generate
func (s *Server) handleIsoGenerate(c *gin.Context) {
	var req struct {
		BuildID    string            `json:"buildId" binding:"required"`
		SourceDir  string            `json:"sourceDir"`
		Label      string            `json:"label" binding:"required"`
		Bootable   bool              `json:"bootable"`
		Bootloader models.Bootloader `json:"bootloader"`
		OutputName string            `json:"outputName"`
		ConfigName string            `json:"configName"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Bootloader == "" {
		req.Bootloader = models.BootloaderNone
	}
	outputName := req.OutputName
	if outputName == "" {
		outputName = req.BuildID + ".iso"
	}
	sourceDir := req.SourceDir
	if sourceDir == "" {
		// Builds stage their output trees under StagePath/<buildID>.
		sourceDir = filepath.Join(s.config.StagePath, req.BuildID)
	}

	jobID, status, err := s.coordinator.RequestGeneration(c.Request.Context(), iso.Request{
		BuildID:    req.BuildID,
		SourceDir:  sourceDir,
		OutputPath: filepath.Join(s.config.OutputPath, filepath.Base(outputName)),
		Label:      req.Label,
		Bootable:   req.Bootable,
		Bootloader: req.Bootloader,
		ConfigName: req.ConfigName,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": status})
}

// handleIsoStatus handles GET /api/iso/status/:job_id
func (s *Server) handleIsoStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := s.coordinator.CheckStatus(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{
		"status":   job.Status,
		"progress": job.Progress,
		"message":  job.Message,
	}
	if job.Status == models.JobStatusCompleted {
		response["downloadUrl"] = s.coordinator.DownloadURL(jobID, "")
	}

	c.JSON(http.StatusOK, response)
}

// handleIsoDownload handles GET /api/iso/download/:job_id
func (s *Server) handleIsoDownload(c *gin.Context) {
	jobID := c.Param("job_id")

	job, ok := s.tracker.Get(jobID)
	if !ok {
		// Unknown here; the remote backend may still know it.
		c.Redirect(http.StatusFound, s.coordinator.DownloadURL(jobID, c.Query("filename")))
		return
	}

	if !job.IsDocker {
		c.Redirect(http.StatusFound, s.coordinator.DownloadURL(jobID, c.Query("filename")))
		return
	}

	filename := c.Query("filename")
	if filename == "" {
		filename = job.BuildID + ".iso"
	}
	path := filepath.Join(s.config.OutputPath, filepath.Base(filename))

	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("ISO file not found: %s", filename)})
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}

// handleIsoJobs handles GET /api/iso/jobs
func (s *Server) handleIsoJobs(c *gin.Context) {
	if c.Query("all") == "true" {
		c.JSON(http.StatusOK, s.tracker.All())
		return
	}
	c.JSON(http.StatusOK, s.tracker.Active())
}

// handleIsoMetadata handles GET /api/iso/metadata
func (s *Server) handleIsoMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.Metadata())
}

// handleCreateConfig handles POST /api/v1/configs
func (s *Server) handleCreateConfig(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		TargetDisk  string `json:"target_disk" binding:"required"`
		SourcesPath string `json:"sources_path" binding:"required"`
		ScriptsPath string `json:"scripts_path" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.bridge.CreateConfig(c.Request.Context(), s.actor(c), models.BuildConfig{
		Name:        req.Name,
		TargetDisk:  req.TargetDisk,
		SourcesPath: req.SourcesPath,
		ScriptsPath: req.ScriptsPath,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// handleListConfigs handles GET /api/v1/configs
func (s *Server) handleListConfigs(c *gin.Context) {
	configs, err := s.bridge.ListConfigs(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if configs == nil {
		configs = []*models.BuildConfig{}
	}
	c.JSON(http.StatusOK, configs)
}

// handleGetConfig handles GET /api/v1/configs/:id
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.bridge.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "build config not found"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleDeleteConfig handles DELETE /api/v1/configs/:id
func (s *Server) handleDeleteConfig(c *gin.Context) {
	if err := s.bridge.DeleteConfig(c.Request.Context(), s.actor(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleBuildStart handles POST /api/v1/build/start
func (s *Server) handleBuildStart(c *gin.Context) {
	var req struct {
		ConfigID string `json:"config_id"`
	}
	// Body is optional; a build can start without a configuration.
	_ = c.ShouldBindJSON(&req)

	buildID, err := s.engine.Start(c.Request.Context(), s.actor(c), req.ConfigID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"build_id": buildID})
}

// handleBuildState handles GET /api/v1/build
func (s *Server) handleBuildState(c *gin.Context) {
	steps := s.engine.Steps()
	byPhase := models.GroupByPhase(steps)

	c.JSON(http.StatusOK, gin.H{
		"state":            s.engine.State(),
		"steps":            steps,
		"phase_completion": models.PhaseCompletion(byPhase),
	})
}

// handleBuildLogs handles GET /api/v1/build/logs
func (s *Server) handleBuildLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.engine.Logs()})
}

// handleBuildToggle handles POST /api/v1/build/toggle
func (s *Server) handleBuildToggle(c *gin.Context) {
	running := s.engine.Toggle(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"running": running})
}

// handleBuildReset handles POST /api/v1/build/reset
func (s *Server) handleBuildReset(c *gin.Context) {
	s.engine.Reset()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// handleBuildInput handles POST /api/v1/build/input
func (s *Server) handleBuildInput(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.SubmitInput(c.Request.Context(), req.Value); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// handleBuildInputSkip handles POST /api/v1/build/input/skip
func (s *Server) handleBuildInputSkip(c *gin.Context) {
	if err := s.engine.SkipInput(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": true})
}

// handleListBuilds handles GET /api/v1/builds
func (s *Server) handleListBuilds(c *gin.Context) {
	builds, err := s.bridge.ListBuilds(c.Request.Context(), 50)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if builds == nil {
		builds = []*models.BuildRecord{}
	}
	c.JSON(http.StatusOK, builds)
}

// handleGetBuild handles GET /api/v1/builds/:id
func (s *Server) handleGetBuild(c *gin.Context) {
	build, err := s.bridge.GetBuild(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if build == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
		return
	}
	c.JSON(http.StatusOK, build)
}

// handleGetBuildSteps handles GET /api/v1/builds/:id/steps
func (s *Server) handleGetBuildSteps(c *gin.Context) {
	steps, err := s.bridge.GetBuildSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if steps == nil {
		steps = []*models.StepRecord{}
	}
	c.JSON(http.StatusOK, steps)
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNoActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrBuildRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNoInputPending), errors.Is(err, engine.ErrInputRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
