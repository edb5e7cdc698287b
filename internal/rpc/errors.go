package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrRateLimitExceeded is returned once every retry against every endpoint
// has been answered with a rate-limit error.
var ErrRateLimitExceeded = errors.New("rate limit exceeded after exhausting retries")

// RateLimitError 端点返回限流（HTTP 429 或等价的 RPC 错误）
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("endpoint %s is rate limiting requests", e.Endpoint)
}

// TransportError 网络层瞬时故障（连接失败、超时等）
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error against %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError 端点返回 5xx
type ServerError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("endpoint %s returned HTTP %d: %s", e.Endpoint, e.Status, e.Body)
}

// Error is the JSON-RPC error object the endpoint returns for requests it
// could parse but not serve. Handler errors (e.g. an unknown access key)
// are business conditions and are never retried.
type Error struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info"`
	} `json:"cause"`
	Data json.RawMessage `json:"data"`
}

func (e *Error) Error() string {
	if e.Cause.Name != "" {
		return fmt.Sprintf("rpc error %s (%s): %s", e.Name, e.Cause.Name, e.Message)
	}

	return fmt.Sprintf("rpc error %s: %s", e.Name, e.Message)
}

// IsRateLimited reports whether the call failed because the endpoint is
// rate limiting.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsTransient reports whether the call may succeed against the same or
// another endpoint: rate limits, network faults, 5xx responses and RPC
// internal errors. Handler errors are excluded.
func IsTransient(err error) bool {
	if IsRateLimited(err) {
		return true
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	var se *ServerError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError
	}

	var re *Error
	if errors.As(err, &re) {
		return re.Name == "INTERNAL_ERROR"
	}

	return false
}
