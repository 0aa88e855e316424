package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AppError is the body of every non-2xx response.
type AppError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"` // Internal error for logging
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func badRequest(message string, details ...string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Details: details}
}

func internal(err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: "Internal Server Error", Err: err}
}

// fail writes e and stops the handler chain. Server errors are logged
// with their cause; the cause is never sent to the client.
func (s *Server) fail(c *gin.Context, e *AppError) {
	if e.Code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", e)
	}
	c.AbortWithStatusJSON(e.Code, e)
}
