package api

import (
	"errors"
	"log"
	"net/http"

	"threatfeed/orchestrator"
	"threatfeed/runlock"

	"github.com/gin-gonic/gin"
)

// RegisterPipelineRoutes registers the run endpoints.
func (s *Server) RegisterPipelineRoutes(r *gin.Engine) {
	g := r.Group("/api")
	g.POST("/fetch-news", s.handleFetchNews)
	g.POST("/process-staging-articles", s.handleProcessStaging)
	g.GET("/pipeline/status", s.handleStatus)
}

// FetchNewsRequest is the body of POST /api/fetch-news
type FetchNewsRequest struct {
	// Staging defaults to true: stage only and leave promotion to process-staging-articles
	Staging     *bool `json:"staging"`
	MaxArticles int   `json:"maxArticles" binding:"min=0"`
}

// ProcessStagingRequest is the body of POST /api/process-staging-articles
type ProcessStagingRequest struct {
	BatchSize int `json:"batchSize" binding:"min=0"`
}

// handleFetchNews runs a staging pass and, with staging=false, promotes the run's rows.
// Blocks until the run finishes.
func (s *Server) handleFetchNews(c *gin.Context) {
	var req FetchNewsRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	opts := orchestrator.FetchOptions{Staging: true, MaxArticles: req.MaxArticles}
	if req.Staging != nil {
		opts.Staging = *req.Staging
	}

	summary, err := s.runner.FetchNews(c.Request.Context(), opts)
	if err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleProcessStaging promotes one batch of staged rows
func (s *Server) handleProcessStaging(c *gin.Context) {
	var req ProcessStagingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	summary, err := s.runner.ProcessStaging(c.Request.Context(), req.BatchSize)
	if err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

// handleStatus returns the last run summaries, recent log lines and staging counts
func (s *Server) handleStatus(c *gin.Context) {
	status := s.runner.State().Snapshot()

	pending, processed, err := s.catalog.StagingCounts(c.Request.Context())
	if err != nil {
		log.Printf("Warning: failed to count staging rows: %v", err)
	} else {
		status.Pending = pending
		status.Processed = processed
	}
	c.JSON(http.StatusOK, status)
}

// bindOptionalJSON binds the body when one was sent; an empty body keeps the defaults
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}

func respondRunError(c *gin.Context, err error) {
	if errors.Is(err, runlock.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}
	log.Printf("API Error: pipeline run failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}
