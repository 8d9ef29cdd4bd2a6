package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/voss/flowrag/internal/models"
)

// AuthRequest is the client-credentials payload for the token endpoint.
type AuthRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	AppToAccess  string `json:"appToAccess"`
}

// NewAuthRequest builds a trimmed, validated auth request. An empty
// appToAccess defaults to "llm-api".
func NewAuthRequest(clientID, clientSecret, appToAccess string) (AuthRequest, error) {
	req := AuthRequest{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
		AppToAccess:  strings.TrimSpace(appToAccess),
	}
	if req.AppToAccess == "" {
		req.AppToAccess = "llm-api"
	}
	if req.ClientID == "" {
		return AuthRequest{}, &ConfigError{Message: "client_id must not be empty"}
	}
	if req.ClientSecret == "" {
		return AuthRequest{}, &ConfigError{Message: "client_secret must not be empty"}
	}
	return req, nil
}

// AuthResponse is the token endpoint reply. ExpiresIn is in seconds.
type AuthResponse struct {
	AccessToken string
	ExpiresIn   int
	TokenType   string
}

// AuthorizationHeader formats the token as a bearer Authorization value.
func (a AuthResponse) AuthorizationHeader() string {
	return "Bearer " + a.AccessToken
}

// ParseAuthResponse decodes and validates a token endpoint body. The gateway
// has been observed returning expires_in both as a number and as a numeric
// string.
func ParseAuthResponse(data []byte) (*AuthResponse, error) {
	var raw struct {
		AccessToken *string         `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
		TokenType   string          `json:"token_type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ResponseError{Message: "invalid JSON from token endpoint", Data: string(data)}
	}
	if raw.AccessToken == nil || *raw.AccessToken == "" {
		return nil, &ResponseError{Message: "missing access_token in response", Data: string(data)}
	}
	if len(raw.ExpiresIn) == 0 {
		return nil, &ResponseError{Message: "missing expires_in in response", Data: string(data)}
	}

	expiresIn, err := parseExpiresIn(raw.ExpiresIn)
	if err != nil {
		return nil, &ResponseError{Message: err.Error(), Data: string(data)}
	}

	return &AuthResponse{
		AccessToken: *raw.AccessToken,
		ExpiresIn:   expiresIn,
		TokenType:   raw.TokenType,
	}, nil
}

func parseExpiresIn(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid expires_in value: %d", n)
		}
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid expires_in value: %q", s)
		}
		return n, nil
	}

	return 0, fmt.Errorf("invalid expires_in value: %s", string(raw))
}

// HealthResponse is the gateway health endpoint reply.
type HealthResponse struct {
	Result    bool   `json:"result"`
	Timestamp string `json:"timestamp"`
}

// ParseHealthResponse decodes and validates a health endpoint body, checking
// both presence and types of the required fields.
func ParseHealthResponse(data []byte) (*HealthResponse, error) {
	var raw struct {
		Result    *bool           `json:"result"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ResponseError{Message: "invalid JSON from health endpoint", Data: string(data)}
	}
	if raw.Result == nil {
		return nil, &ResponseError{Message: "missing result field in response", Data: string(data)}
	}
	if len(raw.Timestamp) == 0 {
		return nil, &ResponseError{Message: "missing timestamp field in response", Data: string(data)}
	}

	var ts string
	if err := json.Unmarshal(raw.Timestamp, &ts); err != nil {
		return nil, &ResponseError{Message: "invalid timestamp field type", Data: string(data)}
	}
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return nil, &ResponseError{Message: "invalid timestamp: empty string", Data: string(data)}
	}

	return &HealthResponse{Result: *raw.Result, Timestamp: ts}, nil
}

// ChatCompletionRequest is the Azure-OpenAI-compatible chat payload. The
// gateway expects snake_case parameters except allowedModels.
type ChatCompletionRequest struct {
	Messages      []models.ChatMessage `json:"messages"`
	Stream        bool                 `json:"stream"`
	MaxTokens     int                  `json:"max_tokens"`
	Temperature   float64              `json:"temperature"`
	AllowedModels []string             `json:"allowedModels"`
}

// NewChatCompletionRequest validates and builds a chat completion request
// with the gateway defaults.
func NewChatCompletionRequest(messages []models.ChatMessage, maxTokens int, temperature float64, stream bool, allowedModels []string) (*ChatCompletionRequest, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}
	for i, m := range messages {
		if !models.ValidRole(m.Role) {
			return nil, fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("message %d has empty content", i)
		}
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if len(allowedModels) == 0 {
		allowedModels = []string{"gpt-4o-mini"}
	}
	return &ChatCompletionRequest{
		Messages:      messages,
		Stream:        stream,
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		AllowedModels: allowedModels,
	}, nil
}

// ChatCompletionUsage reports token accounting for a completion.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChoice is a single generated completion.
type ChatCompletionChoice struct {
	Index        int                `json:"index"`
	Message      models.ChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

// ChatCompletionResponse is the gateway chat completion reply.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Created int64                  `json:"created"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

// FirstChoiceContent returns the content of the first choice, or "" when the
// response carries no choices.
func (r *ChatCompletionResponse) FirstChoiceContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ParseChatCompletionResponse decodes and validates a chat completion body.
func ParseChatCompletionResponse(data []byte) (*ChatCompletionResponse, error) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ResponseError{Message: "invalid JSON from chat endpoint", Data: string(data)}
	}
	if len(resp.Choices) == 0 {
		return nil, &ResponseError{Message: "response carries no choices", Data: string(data)}
	}
	return &resp, nil
}
