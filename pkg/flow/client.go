package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/voss/flowrag/internal/models"
)

// Gateway endpoint paths.
const (
	tokenPath  = "/auth-engine-api/v1/api-key/token"
	chatPath   = "/ai-orchestration-api/v1/openai/chat/completions"
	healthPath = "/ai-orchestration-api/v1/health"
)

// tokenRefreshSkew renews the token slightly before its reported expiry so
// in-flight requests never carry a token that expires mid-call.
const tokenRefreshSkew = 30 * time.Second

// Token lifecycle states.
const (
	StateUnauthenticated = "unauthenticated"
	StateAuthenticated   = "authenticated"
	StateExpired         = "expired"
)

// Config holds the gateway client configuration.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	AppToAccess  string
	Timeout      time.Duration
}

// Client talks to the Flow gateway. It authenticates with client
// credentials, caches the bearer token in memory and transparently
// re-authenticates once the token expires. Safe for concurrent use; an
// expired token is refreshed exactly once regardless of how many requests
// race on it.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient creates a gateway client with the given configuration.
func NewClient(config Config) (*Client, error) {
	if config.ClientID == "" {
		return nil, &ConfigError{Message: "CLIENT_ID is required"}
	}
	if config.ClientSecret == "" {
		return nil, &ConfigError{Message: "CLIENT_SECRET is required"}
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://flow.ciandt.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.AppToAccess == "" {
		config.AppToAccess = "llm-api"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "flow-gateway",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// 4xx means the gateway is up; only transport failures and
			// 5xx should trip the breaker.
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500
			}
			return err == nil
		},
	})

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
	}, nil
}

// TokenState reports where the client is in the token lifecycle.
func (c *Client) TokenState() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" {
		return StateUnauthenticated
	}
	if !time.Now().Before(c.expiresAt) {
		return StateExpired
	}
	return StateAuthenticated
}

// Authenticate exchanges the client credentials for a bearer token and
// caches it. Callers normally never need this: every authenticated request
// re-checks expiry and refreshes on its own.
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// token returns a valid bearer token, re-authenticating when the cached one
// is missing or expired. The mutex is held across the refresh so concurrent
// callers trigger a single token request.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	auth, err := c.refreshLocked(ctx)
	if err != nil {
		return "", err
	}
	return auth.AccessToken, nil
}

// refreshLocked performs the token request. Caller must hold c.mu.
func (c *Client) refreshLocked(ctx context.Context) (*AuthResponse, error) {
	req, err := NewAuthRequest(c.config.ClientID, c.config.ClientSecret, c.config.AppToAccess)
	if err != nil {
		return nil, err
	}

	body, err := c.doJSON(ctx, http.MethodPost, tokenPath, req, "")
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Message: "credentials rejected by token endpoint", StatusCode: httpErr.StatusCode}
		}
		return nil, err
	}

	auth, err := ParseAuthResponse(body)
	if err != nil {
		return nil, err
	}

	c.accessToken = auth.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(auth.ExpiresIn)*time.Second - tokenRefreshSkew)

	return auth, nil
}

// HealthCheck queries the gateway health endpoint. With authenticated set,
// the request carries a bearer token (refreshing it first when needed).
func (c *Client) HealthCheck(ctx context.Context, authenticated bool) (*HealthResponse, error) {
	var token string
	if authenticated {
		var err error
		if token, err = c.token(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.doJSON(ctx, http.MethodGet, healthPath, nil, token)
	if err != nil {
		return nil, err
	}
	return ParseHealthResponse(body)
}

// ChatCompletion sends a chat completion request to the gateway,
// authenticating first when needed.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.doJSON(ctx, http.MethodPost, chatPath, req, token)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			// Token rejected upstream; drop it so the next call re-auths.
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
			return nil, &AuthError{Message: "bearer token rejected by gateway", StatusCode: httpErr.StatusCode}
		}
		return nil, err
	}

	return ParseChatCompletionResponse(body)
}

// Complete is a single-turn convenience wrapper around ChatCompletion.
func (c *Client) Complete(ctx context.Context, userMessage string, maxTokens int, temperature float64) (*ChatCompletionResponse, error) {
	req, err := NewChatCompletionRequest(
		[]models.ChatMessage{{Role: models.RoleUser, Content: userMessage}},
		maxTokens, temperature, false, nil,
	)
	if err != nil {
		return nil, err
	}
	return c.ChatCompletion(ctx, req)
}

// doJSON issues a gateway request through the circuit breaker and returns
// the raw response body. Transport failures, timeouts and error statuses are
// translated into the typed error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, token string) ([]byte, error) {
	url := c.config.BaseURL + path

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, &ConnectionError{URL: url, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "flowrag/1.0")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, c.wrapTransportError(url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ConnectionError{URL: url, Err: err}
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &HTTPError{
				Method:     method,
				URL:        url,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}

		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ConnectionError{URL: url, Err: err}
		}
		return nil, err
	}

	return result.([]byte), nil
}

func (c *Client) wrapTransportError(url string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: url, Timeout: c.config.Timeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: url, Timeout: c.config.Timeout, Err: err}
	}
	return &ConnectionError{URL: url, Err: err}
}
