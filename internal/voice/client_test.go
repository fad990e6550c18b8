package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	return c
}

func TestPlaceCall(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/calls" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing bearer auth")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"call_id":"vc_123"}`))
	}))

	res, err := c.PlaceCall(context.Background(), PlaceCallRequest{
		WorkspaceID:   "w1",
		ContactID:     "contact1",
		ContactNumber: "+15551234567",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ProviderCallID != "vc_123" {
		t.Fatalf("unexpected provider call id: %q", res.ProviderCallID)
	}
}

func TestPlaceCall5xxIsTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.PlaceCall(context.Background(), PlaceCallRequest{
		WorkspaceID:   "w1",
		ContactID:     "contact1",
		ContactNumber: "+15551234567",
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestGetCallStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/vc_123" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"call_id":"vc_123","status":"ended","ended_reason":"voicemail"}`))
	}))

	payload, err := c.GetCallStatus(context.Background(), "vc_123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected payload bytes")
	}
}

func TestGetCallStatusValidation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if _, err := c.GetCallStatus(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty call id")
	}
}
