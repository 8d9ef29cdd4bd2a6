package server

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voss/flowrag/internal/models"
	"github.com/voss/flowrag/pkg/flow"
	"github.com/voss/flowrag/pkg/rag"
)

var uploadExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

// defaultTemperature applies when a request omits the field. An explicit
// zero is forwarded as given.
const defaultTemperature = 0.7

type completionRequest struct {
	Message     string   `json:"message" binding:"required"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

type advancedRequest struct {
	Messages      []models.ChatMessage `json:"messages" binding:"required"`
	MaxTokens     int                  `json:"max_tokens"`
	Temperature   *float64             `json:"temperature"`
	Stream        bool                 `json:"stream"`
	AllowedModels []string             `json:"allowed_models"`
}

func temperatureOrDefault(t *float64) float64 {
	if t == nil {
		return defaultTemperature
	}
	return *t
}

type chatResponse struct {
	*flow.ChatCompletionResponse
	RAGMetadata *rag.RetrievalMetadata `json:"rag_metadata,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "flowrag",
		"message": "chat gateway with retrieval augmented generation",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	authenticated := c.Query("authenticated") == "true"

	upstream, err := s.gateway.HealthCheck(c.Request.Context(), authenticated)
	if err != nil {
		s.logger.Warn("upstream health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"upstream": gin.H{"result": false, "error": err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"upstream": gin.H{
			"result":    upstream.Result,
			"timestamp": upstream.Timestamp,
		},
		"token_state": s.gateway.TokenState(),
	})
}

func (s *Server) handleChatCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	messages := []models.ChatMessage{{Role: models.RoleUser, Content: req.Message}}
	s.chat(c, messages, req.MaxTokens, temperatureOrDefault(req.Temperature), false, nil)
}

func (s *Server) handleChatAdvanced(c *gin.Context) {
	var req advancedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	s.chat(c, req.Messages, req.MaxTokens, temperatureOrDefault(req.Temperature), req.Stream, req.AllowedModels)
}

func (s *Server) handleChatUploaded(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "invalid multipart form", err)
		return
	}

	rawMessages := c.PostForm("messages")
	if rawMessages == "" {
		badRequest(c, "messages field is required", nil)
		return
	}
	var messages []models.ChatMessage
	if err := json.Unmarshal([]byte(rawMessages), &messages); err != nil {
		badRequest(c, "messages must be a JSON array of chat messages", err)
		return
	}

	maxTokens := 0
	if raw := c.PostForm("max_tokens"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "max_tokens must be an integer", err)
			return
		}
		maxTokens = v
	}

	temperature := defaultTemperature
	if raw := c.PostForm("temperature"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "temperature must be a number", err)
			return
		}
		temperature = v
	}

	stream := false
	if raw := c.PostForm("stream"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "stream must be a boolean", err)
			return
		}
		stream = v
	}

	var allowedModels []string
	if raw := c.PostForm("allowed_models"); raw != "" {
		for _, model := range strings.Split(raw, ",") {
			if model = strings.TrimSpace(model); model != "" {
				allowedModels = append(allowedModels, model)
			}
		}
	}

	files := form.File["files"]
	if len(files) > 0 {
		if s.retriever == nil {
			badRequest(c, "document indexing is not enabled", nil)
			return
		}
		if err := s.indexUploads(c, files); err != nil {
			return
		}
	}

	s.chat(c, messages, maxTokens, temperature, stream, allowedModels)
}

// indexUploads validates, saves and indexes uploaded files. It renders
// the error response itself and reports failure to the caller.
func (s *Server) indexUploads(c *gin.Context, files []*multipart.FileHeader) error {
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !uploadExtensions[ext] {
			badRequest(c, "unsupported file type: "+file.Filename, nil)
			return os.ErrInvalid
		}
		if file.Size > s.config.UploadLimit {
			badRequest(c, "file too large: "+file.Filename, nil)
			return os.ErrInvalid
		}
	}

	dir, err := os.MkdirTemp("", "flowrag-upload-*")
	if err != nil {
		s.renderError(c, err)
		return err
	}
	defer os.RemoveAll(dir)

	paths := make([]string, 0, len(files))
	for _, file := range files {
		dst := filepath.Join(dir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			s.renderError(c, err)
			return err
		}
		paths = append(paths, dst)
	}

	if _, err := s.retriever.IndexUploads(c.Request.Context(), paths); err != nil {
		s.renderError(c, err)
		return err
	}
	return nil
}

// chat augments the last user message with retrieved context when a
// retriever is available, then forwards the conversation upstream.
func (s *Server) chat(c *gin.Context, messages []models.ChatMessage, maxTokens int, temperature float64, stream bool, allowedModels []string) {
	if len(messages) == 0 {
		badRequest(c, "at least one message is required", nil)
		return
	}

	var meta *rag.RetrievalMetadata
	if s.retriever != nil {
		if i := lastUserMessage(messages); i >= 0 {
			augmented, m, err := s.retriever.AugmentQuery(c.Request.Context(), messages[i].Content)
			if err != nil {
				s.logger.Warn("retrieval failed, continuing without context", "error", err)
			} else {
				messages = append([]models.ChatMessage(nil), messages...)
				messages[i].Content = augmented
				meta = m
			}
		}
	}

	req, err := flow.NewChatCompletionRequest(messages, maxTokens, temperature, stream, allowedModels)
	if err != nil {
		badRequest(c, "invalid chat request", err)
		return
	}

	resp, err := s.gateway.ChatCompletion(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{ChatCompletionResponse: resp, RAGMetadata: meta})
}

func lastUserMessage(messages []models.ChatMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return i
		}
	}
	return -1
}

func (s *Server) handleRAGStatus(c *gin.Context) {
	if s.retriever == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "ready": false})
		return
	}

	status, err := s.retriever.Status(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":      true,
		"ready":        status.Ready,
		"chunk_count":  status.ChunkCount,
		"last_indexed": status.LastIndexed,
	})
}
