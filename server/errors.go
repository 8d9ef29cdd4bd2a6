package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voss/flowrag/pkg/flow"
)

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// renderError maps gateway error types onto HTTP statuses. Validation
// failures are rejected before a request reaches the gateway, so they
// are rendered directly with badRequest instead.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "unexpected error"

	var (
		authErr    *flow.AuthError
		configErr  *flow.ConfigError
		httpErr    *flow.HTTPError
		respErr    *flow.ResponseError
		timeoutErr *flow.TimeoutError
		connErr    *flow.ConnectionError
	)

	switch {
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
		message = "authentication with the gateway failed"
	case errors.As(err, &configErr):
		status = http.StatusInternalServerError
		message = "service is misconfigured"
	case errors.As(err, &timeoutErr):
		status = http.StatusServiceUnavailable
		message = "gateway did not respond in time"
	case errors.As(err, &connErr):
		status = http.StatusServiceUnavailable
		message = "could not reach the gateway"
	case errors.As(err, &httpErr):
		status = http.StatusBadGateway
		message = "gateway returned an error"
	case errors.As(err, &respErr):
		status = http.StatusBadGateway
		message = "gateway returned an unexpected response"
	}

	s.logger.Error("request failed", "status", status, "error", err)
	c.JSON(status, errorBody{Status: status, Message: message, Error: err.Error()})
}

func badRequest(c *gin.Context, message string, err error) {
	body := errorBody{Status: http.StatusBadRequest, Message: message}
	if err != nil {
		body.Error = err.Error()
	} else {
		body.Error = message
	}
	c.JSON(http.StatusBadRequest, body)
}
