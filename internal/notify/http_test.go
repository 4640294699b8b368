package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPPusherPush(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &HTTPPusher{BaseURL: srv.URL}
	if err := p.Push(context.Background(), Event{Type: "sla_alert", Count: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != "sla_alert" || got.Count != 3 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if p.Client == nil {
		t.Fatalf("expected the lazily built client to be kept for reuse")
	}
}

func TestHTTPPusherGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := &HTTPPusher{BaseURL: srv.URL}
	if err := p.Push(context.Background(), Event{Type: "sla_alert", Count: 1}); err == nil {
		t.Fatalf("expected an error on a non-2xx response")
	}
}
