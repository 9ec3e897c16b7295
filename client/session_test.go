package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// sseHandler serves one stream per request: a handshake followed by the
// given frames, then ends the response so the session must reconnect.
func sseHandler(t *testing.T, connects *atomic.Int32, frames ...string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			http.NotFound(w, r)
			return
		}
		n := connects.Add(1)

		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":\"c-%d\"}\n\n", n)
		flusher.Flush()

		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

func TestSessionReconnectsAfterStreamEnds(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(t, &connects))
	defer srv.Close()

	s := NewSession(New(srv.URL))
	s.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for connects.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d connections before deadline, want at least 3", connects.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionHandshakeNotSurfaced(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(t, &connects,
		`{"type":"SHOW_QUESTION","questionNumber":2}`,
	))
	defer srv.Close()

	s := NewSession(New(srv.URL))
	s.ReconnectDelay = time.Hour

	events := make(chan Event, 8)
	s.OnEvent = func(e Event) { events <- e }

	shown := make(chan int, 1)
	s.OnShowQuestion = func(n int) { shown <- n }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case n := <-shown:
		if n != 2 {
			t.Fatalf("OnShowQuestion(%d), want 2", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnShowQuestion never fired")
	}

	if got := s.ClientID(); got != "c-1" {
		t.Fatalf("ClientID = %q, want c-1", got)
	}

	// The handshake stays internal: the only surfaced event is the
	// question.
	event := <-events
	if event.Type != EventShowQuestion {
		t.Fatalf("surfaced event = %+v", event)
	}
	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionPlainTextStartGame(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(t, &connects, "START_GAME"))
	defer srv.Close()

	s := NewSession(New(srv.URL))
	s.ReconnectDelay = time.Hour

	started := make(chan struct{}, 1)
	s.OnStartGame = func() { started <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("OnStartGame never fired for plain-text frame")
	}
}

func TestSessionSubmitUsesCachedAnswer(t *testing.T) {
	var posts, puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/answers":
			posts.Add(1)
			var body struct {
				Text           string `json:"text"`
				QuestionNumber int    `json:"questionNumber"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(Answer{
				ID:             "a-1",
				Text:           body.Text,
				QuestionNumber: body.QuestionNumber,
			})
		case r.Method == http.MethodPut && r.URL.Path == "/api/answers/a-1":
			puts.Add(1)
			var body struct {
				Text string `json:"text"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(Answer{
				ID:             "a-1",
				Text:           body.Text,
				QuestionNumber: 1,
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewSession(New(srv.URL))
	ctx := context.Background()

	first, err := s.Submit(ctx, "u-1", "Oslo", 1)
	if err != nil {
		t.Fatalf("first Submit error: %v", err)
	}
	if first.ID != "a-1" {
		t.Fatalf("first Submit returned %+v", first)
	}

	second, err := s.Submit(ctx, "u-1", "Trondheim", 1)
	if err != nil {
		t.Fatalf("second Submit error: %v", err)
	}
	if second.Text != "Trondheim" {
		t.Fatalf("second Submit returned %+v", second)
	}

	if posts.Load() != 1 || puts.Load() != 1 {
		t.Fatalf("posts = %d, puts = %d, want 1 and 1", posts.Load(), puts.Load())
	}

	cached, ok := s.Answer(1)
	if !ok || cached.Text != "Trondheim" {
		t.Fatalf("cached answer = %+v, %v", cached, ok)
	}
}
