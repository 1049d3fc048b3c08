package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventStreamDeliversChanges(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handleEvents(rec, req)
	}()

	// Give the stream a moment to subscribe before mutating.
	time.Sleep(50 * time.Millisecond)
	createTestPerson(t, srv, "Alex")
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event handler did not stop after context cancel")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: change") {
		t.Errorf("stream body missing change event: %q", body)
	}
	if !strings.Contains(body, `"entity":"person"`) {
		t.Errorf("stream body missing person entity: %q", body)
	}
	if !strings.Contains(body, `"op":"create"`) {
		t.Errorf("stream body missing create op: %q", body)
	}
}
