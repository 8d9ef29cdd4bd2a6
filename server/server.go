package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voss/flowrag/pkg/flow"
	"github.com/voss/flowrag/pkg/rag"
)

// Gateway is the subset of the flow client the handlers use.
type Gateway interface {
	HealthCheck(ctx context.Context, authenticated bool) (*flow.HealthResponse, error)
	ChatCompletion(ctx context.Context, req *flow.ChatCompletionRequest) (*flow.ChatCompletionResponse, error)
	TokenState() string
}

// Retriever is the subset of the RAG manager the handlers use.
type Retriever interface {
	AugmentQuery(ctx context.Context, query string) (string, *rag.RetrievalMetadata, error)
	IndexUploads(ctx context.Context, paths []string) (*rag.IndexStats, error)
	Status(ctx context.Context) (*rag.Status, error)
}

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigins []string
	UploadLimit int64
}

// Server routes chat and retrieval requests to the gateway client and
// RAG manager. The retriever may be nil, in which case chat endpoints
// pass messages through unaugmented.
type Server struct {
	config    Config
	gateway   Gateway
	retriever Retriever
	logger    *slog.Logger
	router    *gin.Engine
}

// New builds the router with CORS, recovery and request logging.
func New(config Config, gateway Gateway, retriever Retriever, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.UploadLimit <= 0 {
		config.UploadLimit = 10 << 20
	}

	s := &Server{
		config:    config,
		gateway:   gateway,
		retriever: retriever,
		logger:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(config.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = config.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.POST("/chat/completion", s.handleChatCompletion)
	router.POST("/chat/advanced", s.handleChatAdvanced)
	router.POST("/chat/uploaded", s.handleChatUploaded)
	router.GET("/rag/status", s.handleRAGStatus)

	s.router = router
	return s
}

// Handler exposes the router for serving and for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
