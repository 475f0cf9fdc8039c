package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/pipeline"
	"github.com/ppiankov/trialmatch/internal/store"
)

// maxTrialText bounds an uploaded eligibility text
const maxTrialText = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type trialRequest struct {
	Text string `json:"text" binding:"required"`
}

type matchTrialsRequest struct {
	Trials []string `json:"trials" binding:"required,min=1"`
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/healthz", s.healthz)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := router.Group("/v1")
	v1.Use(s.apiKeyAuth())
	{
		v1.PUT("/trials/:id", s.putTrial)
		v1.GET("/trials/:id", s.getTrial)
		v1.GET("/trials/:id/rules", s.getRules)
		v1.GET("/trials/:id/match/:patient", s.matchPatient)
		v1.GET("/trials/:id/match/:patient/history", s.matchHistory)
		v1.PUT("/patients/:id", s.putPatient)
		v1.POST("/patients/:id/match", s.matchTrials)
		v1.POST("/sweep", s.sweep)
	}
	return router
}

// apiKeyAuth checks X-API-KEY when a key is configured
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized: invalid API key"})
			return
		}
		c.Next()
	}
}

// requestLogger logs the route template rather than the raw path, which
// carries patient ids
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "parser": s.pipeline.Identity()})
}

// putTrial stores eligibility text and queues its parse. The body is either
// {"text": "..."} or the raw text.
func (s *Server) putTrial(c *gin.Context) {
	id := c.Param("id")

	var text string
	if c.ContentType() == "application/json" {
		var req trialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
		text = req.Text
	} else {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTrialText+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "read body: " + err.Error()})
			return
		}
		text = string(data)
	}
	if len(text) > maxTrialText {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "eligibility text too large"})
		return
	}
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "eligibility text is empty"})
		return
	}

	trial, err := s.pipeline.PutTrial(c.Request.Context(), id, text)
	if err != nil {
		s.respondError(c, err)
		return
	}

	status := "queued"
	if !s.enqueue(id) {
		status = "deferred"
	}
	c.JSON(http.StatusAccepted, gin.H{
		"trial_id":   trial.ID,
		"updated_at": trial.UpdatedAt,
		"parse":      status,
	})
}

func (s *Server) getTrial(c *gin.Context) {
	trial, err := s.pipeline.Trial(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

// getRules returns the active rule set, or one parser identity's with ?identity=
func (s *Server) getRules(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		set *model.RuleSet
		err error
	)
	if identity := c.Query("identity"); identity != "" {
		set, err = s.pipeline.RuleSet(ctx, id, identity)
	} else {
		set, err = s.pipeline.Rules(ctx, id)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) putPatient(c *gin.Context) {
	id := c.Param("id")

	var profile model.PatientProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid patient profile: " + err.Error()})
		return
	}
	if profile.ID != "" && profile.ID != id {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "profile id does not match the path"})
		return
	}
	profile.ID = id

	if err := s.pipeline.PutPatient(c.Request.Context(), &profile); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": id, "updated_at": profile.UpdatedAt})
}

// matchPatient evaluates one pair; ?format=markdown returns the checklist
func (s *Server) matchPatient(c *gin.Context) {
	report, err := s.pipeline.Match(c.Request.Context(), c.Param("id"), c.Param("patient"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	if c.Query("format") == "markdown" {
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		if err := s.renderer.WriteMarkdown(c.Writer, report); err != nil {
			s.logger.Warn("write markdown report", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) matchHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reports, err := s.pipeline.History(c.Request.Context(), c.Param("id"), c.Param("patient"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	c.JSON(http.StatusOK, reports)
}

// matchTrials evaluates one patient against several trials
func (s *Server) matchTrials(c *gin.Context) {
	var req matchTrialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	reports, err := s.pipeline.MatchTrials(c.Request.Context(), c.Param("id"), req.Trials)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Server) sweep(c *gin.Context) {
	n, err := s.Sweep(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}

// respondError maps pipeline errors to status codes
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, pipeline.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
