package api

import (
	"net/http"
	"strconv"

	"threatfeed/classify"
	"threatfeed/store"

	"github.com/gin-gonic/gin"
)

// maxListLimit bounds the limit query parameter
const maxListLimit = 500

// RegisterArticleRoutes registers read-only catalog routes.
func (s *Server) RegisterArticleRoutes(r *gin.Engine) {
	g := r.Group("/api")
	g.GET("/articles", s.handleListArticles)
	g.GET("/sources", s.handleListSources)
	g.GET("/staging", s.handleListStaging)
	g.GET("/health", s.handleHealth)
}

// handleListArticles lists production articles, newest first.
// Query params: category, source, limit (optional)
func (s *Server) handleListArticles(c *gin.Context) {
	filter := store.ArticleFilter{Source: c.Query("source")}

	if v := c.Query("category"); v != "" {
		category, err := classify.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Category = string(category)
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filter.Limit = n
	}

	articles, err := s.catalog.ListArticles(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list articles: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(articles), "articles": articles})
}

// handleListSources lists configured sources. active=true restricts to active ones.
func (s *Server) handleListSources(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	sources, err := s.catalog.ListSources(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sources: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(sources), "sources": sources})
}

// handleListStaging lists the current staging table, oldest first
func (s *Server) handleListStaging(c *gin.Context) {
	rows, err := s.catalog.ListStaging(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list staging: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "articles": rows})
}

// handleHealth reports whether the database is reachable
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.catalog.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
