package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassAuth represents authentication failures.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents a non-success bulk API response with server context.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.ErrorCode != "" {
		msg = e.ErrorCode + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("bulk API error (status %d): %s: %v", e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("bulk API error (status %d): %s", e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// apiErrorBody is the platform's error payload: a JSON array of
// errorCode/message pairs.
type apiErrorBody []struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// ErrorFromResponse builds an APIError from a non-success response,
// consuming the body. The caller still owns closing the body.
func ErrorFromResponse(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed apiErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed) > 0 {
		apiErr.ErrorCode = parsed[0].ErrorCode
		apiErr.Message = parsed[0].Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

// classifyStatus categorizes an HTTP status for observability.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ErrorClassAuth
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
