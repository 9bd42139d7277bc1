package api

import (
	"net/http"
	"time"

	"threatfeed/types"

	"github.com/gin-gonic/gin"
)

// RegisterDeduplicationRoutes registers deduplication service endpoints.
func (s *Server) RegisterDeduplicationRoutes(r *gin.Engine) {
	g := r.Group("/api/deduplication")
	g.POST("/check", s.handleCheckDuplicate)
}

// CheckDuplicateRequest represents the request to check for duplicates
type CheckDuplicateRequest struct {
	Article *types.Candidate `json:"article" binding:"required"`
}

// CheckDuplicateResponse represents the response from duplicate check
type CheckDuplicateResponse struct {
	IsDuplicate     bool      `json:"is_duplicate"`
	Reason          string    `json:"reason,omitempty"`
	MatchingTitle   string    `json:"matching_title,omitempty"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// handleCheckDuplicate checks if an article would be rejected as a duplicate.
// Nothing is recorded.
func (s *Server) handleCheckDuplicate(c *gin.Context) {
	var req CheckDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.dedup.CheckForDuplicates(c.Request.Context(), *req.Article)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check duplicates: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, CheckDuplicateResponse{
		IsDuplicate:     result.IsDuplicate,
		Reason:          result.Reason,
		MatchingTitle:   result.MatchingTitle,
		SimilarityScore: result.SimilarityScore,
		CheckedAt:       result.CheckedAt,
	})
}
