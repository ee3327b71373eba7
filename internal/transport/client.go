// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client and stream decoder for the
// retrieval-augmented chat endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat transport.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeUnauthorized
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrUnavailable  = &ClientError{Type: ErrTypeConnection, Message: "chat endpoint unreachable"}
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized, Message: "credential rejected"}
)

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// IsUnauthorized checks if an error indicates a rejected credential.
func IsUnauthorized(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeUnauthorized
	}
	return errors.Is(err, ErrUnauthorized)
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// CredentialProvider supplies a bearer token per call. Renewal is the
// provider's problem, not this package's.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential is a CredentialProvider returning a fixed token.
type StaticCredential string

// Token implements CredentialProvider.
func (c StaticCredential) Token(context.Context) (string, error) {
	return string(c), nil
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the chat client.
type ClientConfig struct {
	// BaseURL is the chat service base URL.
	BaseURL string

	// AskPath is the streaming chat endpoint path (default: /api/ask).
	AskPath string

	// Timeout bounds connection establishment and response headers
	// (default: 30s). An in-flight request that never calls back within this
	// bound is treated as failed. The stream body itself is bounded only by
	// the caller's context.
	Timeout time.Duration
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:8080",
		AskPath: "/api/ask",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the retrieval-augmented chat endpoint.
//
// The Client is thread-safe for concurrent use; multiple generations may
// stream through one Client at once.
type Client struct {
	config      *ClientConfig
	credentials CredentialProvider
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a chat client. A nil config uses defaults; a nil logger
// logs nowhere.
func NewClient(config *ClientConfig, creds CredentialProvider, logger *zap.Logger) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080"
	}
	if config.AskPath == "" {
		config.AskPath = "/api/ask"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:      config,
		credentials: creds,
		// No overall client timeout: the response body is a long-lived
		// stream. The header bound below enforces the fixed upper limit for
		// a request that never calls back.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: config.Timeout,
			},
		},
		logger: logger,
	}
}

// =============================================================================
// STREAMING ASK
// =============================================================================

// AskStream submits a question and decodes the streamed response, calling
// the callback for each classified event in arrival order. Returns when the
// stream terminates or the context is cancelled. Transport failures surface
// once, as the returned error; there is no retry.
func (c *Client) AskStream(ctx context.Context, req AskRequest, callback EventCallback) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+c.config.AskPath, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.credentials != nil {
		token, err := c.credentials.Token(ctx)
		if err != nil {
			return &ClientError{Type: ErrTypeUnauthorized, Message: "failed to obtain credential", Cause: err}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("ask stream start",
		zap.String("model", req.Model),
		zap.String("dataset", req.Dataset),
		zap.String("conversation_id", req.ConversationID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		var serverErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&serverErr); err == nil && serverErr.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: serverErr.Error}
		}
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "ask request failed: " + resp.Status,
		}
	}

	reader := NewStreamReader(resp.Body)
	if err := reader.Process(ctx, callback); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
	}

	c.logger.Debug("ask stream done",
		zap.Int("token_events", reader.Stats().TokenEvents),
		zap.Duration("ttft", reader.Stats().TTFT))
	return nil
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}
