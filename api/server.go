package api

import (
	"context"
	"log"
	"net/http"

	"threatfeed/deduplication"
	"threatfeed/orchestrator"
	"threatfeed/store"
	"threatfeed/types"

	"github.com/gin-gonic/gin"
)

// Runner starts pipeline runs
type Runner interface {
	FetchNews(ctx context.Context, opts orchestrator.FetchOptions) (*types.FetchSummary, error)
	ProcessStaging(ctx context.Context, batchSize int) (*types.PromotionSummary, error)
	State() *orchestrator.State
}

// Catalog is the read side of the store the API serves
type Catalog interface {
	ListArticles(ctx context.Context, f store.ArticleFilter) ([]types.Article, error)
	ListSources(ctx context.Context, activeOnly bool) ([]types.Source, error)
	ListStaging(ctx context.Context) ([]types.StagingArticle, error)
	StagingCounts(ctx context.Context) (pending, processed int64, err error)
	Ping(ctx context.Context) error
}

// DuplicateChecker runs the duplicate detector for one candidate
type DuplicateChecker interface {
	CheckForDuplicates(ctx context.Context, candidate types.Candidate) (*deduplication.DeduplicationResult, error)
}

// Server exposes the pipeline over HTTP
type Server struct {
	runner     Runner
	catalog    Catalog
	dedup      DuplicateChecker
	httpServer *http.Server
}

// NewServer creates a Server
func NewServer(runner Runner, catalog Catalog, dedup DuplicateChecker) *Server {
	return &Server{runner: runner, catalog: catalog, dedup: dedup}
}

// NewRouter constructs a Gin engine with registered routes.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger only in debug mode to reduce verbosity
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}

	s.RegisterPipelineRoutes(r)
	s.RegisterArticleRoutes(r)
	s.RegisterDeduplicationRoutes(r)
	return r
}

// Start serves HTTP on port in the background
func (s *Server) Start(port string) {
	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: s.NewRouter(),
	}
	log.Printf("Starting API server on %s", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
