// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client and stream decoder for the
// retrieval-augmented chat endpoint.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil, nil, nil)

	cfg := c.GetConfig()
	if cfg.BaseURL != "http://127.0.0.1:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.AskPath != "/api/ask" {
		t.Errorf("AskPath = %q", cfg.AskPath)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestNewClient_PartialConfigFilled(t *testing.T) {
	c := NewClient(&ClientConfig{BaseURL: "http://example.test"}, nil, nil)

	cfg := c.GetConfig()
	if cfg.BaseURL != "http://example.test" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.AskPath != "/api/ask" || cfg.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

// =============================================================================
// ASK STREAM TESTS
// =============================================================================

func TestAskStream_SendsRequestAndBearer(t *testing.T) {
	var gotReq AskRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte("[DONE]\n"))
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, StaticCredential("secret-token"), nil)

	req := AskRequest{Question: "why", Model: "m1", Temperature: 0.3, Dataset: "docs", ConversationID: "c1"}
	if err := c.AskStream(context.Background(), req, func(Event) {}); err != nil {
		t.Fatalf("AskStream: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq != req {
		t.Errorf("request body = %+v, want %+v", gotReq, req)
	}
}

func TestAskStream_NoAuthHeaderForEmptyToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[DONE]\n"))
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, StaticCredential(""), nil)
	if err := c.AskStream(context.Background(), AskRequest{Question: "q"}, func(Event) {}); err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestAskStream_UnauthorizedStatuses(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewClient(&ClientConfig{BaseURL: server.URL}, nil, nil)
		err := c.AskStream(context.Background(), AskRequest{Question: "q"}, func(Event) {})
		server.Close()

		if !IsUnauthorized(err) {
			t.Errorf("status %d: err = %v, want unauthorized", status, err)
		}
	}
}

func TestAskStream_ServerErrorBodyIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "unknown dataset"})
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, nil, nil)
	err := c.AskStream(context.Background(), AskRequest{Question: "q"}, func(Event) {})

	if err == nil || err.Error() != "unknown dataset" {
		t.Errorf("err = %v, want the server's error string", err)
	}
}

func TestAskStream_UnreachableEndpoint(t *testing.T) {
	// A closed server refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, nil, nil)
	err := c.AskStream(context.Background(), AskRequest{Question: "q"}, func(Event) {})

	if err != ErrUnavailable {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestAskStream_CancelledBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first: the server cannot detect the client
		// disconnect (and cancel r.Context()) while unread body bytes
		// remain buffered.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
		close(release)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, nil, nil)
	err := c.AskStream(ctx, AskRequest{Question: "q"}, func(Event) {})

	// Caller cancellation keeps its identity; it is not a timeout.
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if IsTimeout(err) {
		t.Error("cancellation misclassified as timeout")
	}
	<-release
}

func TestAskStream_DeliversEventsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte(`{"type":"token","content":"a"}` + "\n"))
		flusher.Flush()
		w.Write([]byte(`{"type":"token","content":"b"}` + "\n[DONE]\n"))
	}))
	defer server.Close()

	c := NewClient(&ClientConfig{BaseURL: server.URL}, nil, nil)

	var got string
	err := c.AskStream(context.Background(), AskRequest{Question: "q"}, func(ev Event) {
		if ev.Type == EventToken {
			got += ev.Token
		}
	})
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	if got != "ab" {
		t.Errorf("tokens = %q, want 'ab'", got)
	}
}

// =============================================================================
// ERROR HELPER TESTS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	if !IsTimeout(ErrTimeout) {
		t.Error("IsTimeout(ErrTimeout) = false")
	}
	if !IsUnauthorized(ErrUnauthorized) {
		t.Error("IsUnauthorized(ErrUnauthorized) = false")
	}
	if IsTimeout(ErrUnavailable) || IsUnauthorized(ErrUnavailable) {
		t.Error("ErrUnavailable misclassified")
	}

	wrapped := &ClientError{Type: ErrTypeTimeout, Message: "outer", Cause: ErrUnavailable}
	if !IsTimeout(wrapped) {
		t.Error("IsTimeout should classify by the outermost type")
	}
	if wrapped.Error() != "outer: chat endpoint unreachable" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}
