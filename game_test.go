package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trysil/quizbox/client"
)

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *Registry) {
	t.Helper()

	if cfg == nil {
		cfg = &Config{}
	}

	store := newMemoryStore()
	reg := newRegistry()
	errs := make(chan error, 64)
	go func() {
		for range errs {
		}
	}()

	srv := httptest.NewServer(buildMux(cfg, store, reg, errs))
	t.Cleanup(srv.Close)

	return srv, reg
}

// subscribeSSE opens the event stream and pumps decoded frames into a
// channel the test can read with a deadline.
func subscribeSSE(t *testing.T, baseURL string) <-chan string {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/events", nil)
	if err != nil {
		t.Fatalf("subscribe request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe returned %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("subscribe Content-Type = %q", got)
	}

	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if payload, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				frames <- payload
			}
		}
	}()

	return frames
}

func nextFrame(t *testing.T, frames <-chan string) string {
	t.Helper()

	select {
	case payload, open := <-frames:
		if !open {
			t.Fatal("event stream closed unexpectedly")
		}
		return payload
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event frame")
	}
	return ""
}

func decodeFrame(t *testing.T, payload string) map[string]any {
	t.Helper()

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("frame %q is not JSON: %v", payload, err)
	}
	return decoded
}

func TestSubscribeHandshakeThenShowQuestion(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	frames := subscribeSSE(t, srv.URL)

	handshake := decodeFrame(t, nextFrame(t, frames))
	if handshake["type"] != "connected" {
		t.Fatalf("first frame type = %v, want connected", handshake["type"])
	}
	if clientID, _ := handshake["clientId"].(string); clientID == "" {
		t.Fatal("handshake carries no clientId")
	}

	host := client.New(srv.URL)
	if _, err := host.ShowQuestion(ctx, 1); err != nil {
		t.Fatalf("ShowQuestion(1) error: %v", err)
	}

	event := decodeFrame(t, nextFrame(t, frames))
	if event["type"] != "SHOW_QUESTION" || event["questionNumber"] != float64(1) {
		t.Fatalf("second frame = %v, want SHOW_QUESTION 1", event)
	}
}

func TestShowQuestionOrderingAndState(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	frames := subscribeSSE(t, srv.URL)
	nextFrame(t, frames) // handshake

	host := client.New(srv.URL)
	for _, n := range []int{5, 6} {
		if _, err := host.ShowQuestion(ctx, n); err != nil {
			t.Fatalf("ShowQuestion(%d) error: %v", n, err)
		}
	}

	for _, want := range []float64{5, 6} {
		event := decodeFrame(t, nextFrame(t, frames))
		if event["type"] != "SHOW_QUESTION" || event["questionNumber"] != want {
			t.Fatalf("frame = %v, want SHOW_QUESTION %v", event, want)
		}
	}

	state, err := host.State(ctx)
	if err != nil {
		t.Fatalf("State error: %v", err)
	}
	if state.Status != StatusActive || state.CurrentQuestion == nil || *state.CurrentQuestion != 6 {
		t.Fatalf("final state = %+v, want question 6 ACTIVE", state)
	}
}

func TestStartGameBroadcast(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	frames := subscribeSSE(t, srv.URL)
	nextFrame(t, frames) // handshake

	count, err := client.New(srv.URL).StartGame(ctx)
	if err != nil {
		t.Fatalf("StartGame error: %v", err)
	}
	if count != 1 {
		t.Fatalf("StartGame notified %d clients, want 1", count)
	}

	event := decodeFrame(t, nextFrame(t, frames))
	if event["type"] != "START_GAME" {
		t.Fatalf("frame = %v, want START_GAME", event)
	}
}

func TestJoinSubmitAndScore(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()
	c := client.New(srv.URL)

	user, err := c.Join(ctx, "Kari")
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}

	again, err := c.Join(ctx, "Kari")
	if err != nil {
		t.Fatalf("second Join error: %v", err)
	}
	if again.ID != user.ID {
		t.Fatal("rejoining with the same name created a new user")
	}

	// Nothing is active yet, so submissions are rejected.
	if _, err := c.SubmitAnswer(ctx, user.ID, "Oslo", 1); !isAPIStatus(err, http.StatusConflict) {
		t.Fatalf("submit before any question: error = %v, want 409", err)
	}

	if _, err := c.ShowQuestion(ctx, 1); err != nil {
		t.Fatalf("ShowQuestion(1) error: %v", err)
	}

	answer, err := c.SubmitAnswer(ctx, user.ID, "Oslo", 1)
	if err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}

	// Wrong question number while 1 is active.
	if _, err := c.SubmitAnswer(ctx, user.ID, "Bergen", 3); !isAPIStatus(err, http.StatusConflict) {
		t.Fatalf("submit for inactive question: error = %v, want 409", err)
	}

	// Duplicate submission for the active question.
	if _, err := c.SubmitAnswer(ctx, user.ID, "Bergen", 1); !isAPIStatus(err, http.StatusConflict) {
		t.Fatalf("duplicate submit: error = %v, want 409", err)
	}

	updated, err := c.UpdateAnswer(ctx, answer.ID, "Trondheim")
	if err != nil {
		t.Fatalf("UpdateAnswer error: %v", err)
	}
	if updated.Text != "Trondheim" {
		t.Fatalf("UpdateAnswer text = %q", updated.Text)
	}

	scored, err := c.SetAnswerPoints(ctx, answer.ID, 3)
	if err != nil {
		t.Fatalf("SetAnswerPoints error: %v", err)
	}
	if scored.Points != 3 {
		t.Fatalf("SetAnswerPoints stored %d, want 3", scored.Points)
	}

	if _, err := c.SetAnswerPoints(ctx, answer.ID, 4); !isAPIStatus(err, http.StatusBadRequest) {
		t.Fatalf("out-of-range points: error = %v, want 400", err)
	}
}

func TestBroadcastEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()

	resp, err := http.Post(srv.URL+"/api/broadcast", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("broadcast request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broadcast without message = %d, want 400", resp.StatusCode)
	}

	count, err := client.New(srv.URL).Broadcast(ctx, "hello")
	if err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if count != 0 {
		t.Fatalf("Broadcast with no subscribers delivered to %d", count)
	}
}

func TestAdminTokenGuard(t *testing.T) {
	srv, _ := newTestServer(t, &Config{adminToken: "hemmelig"})
	ctx := context.Background()

	anonymous := client.New(srv.URL)
	if _, err := anonymous.StartGame(ctx); !isAPIStatus(err, http.StatusUnauthorized) {
		t.Fatalf("StartGame without token: error = %v, want 401", err)
	}

	host := client.New(srv.URL)
	host.AdminToken = "hemmelig"
	if _, err := host.StartGame(ctx); err != nil {
		t.Fatalf("StartGame with token error: %v", err)
	}

	// Participant endpoints stay open.
	if _, err := anonymous.Join(ctx, "Kari"); err != nil {
		t.Fatalf("Join with admin token set: %v", err)
	}
}

func TestDashboardData(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx := context.Background()
	c := client.New(srv.URL)

	user, err := c.Join(ctx, "Kari")
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if _, err := c.ShowQuestion(ctx, 1); err != nil {
		t.Fatalf("ShowQuestion error: %v", err)
	}
	if _, err := c.SubmitAnswer(ctx, user.ID, "Oslo", 1); err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/admin/answers")
	if err != nil {
		t.Fatalf("dashboard request: %v", err)
	}
	defer resp.Body.Close()

	var data struct {
		Users []struct {
			Name    string `json:"name"`
			Answers []struct {
				Text string `json:"text"`
			} `json:"answers"`
		} `json:"users"`
		ClientCount int `json:"clientCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}

	if len(data.Users) != 1 || data.Users[0].Name != "Kari" {
		t.Fatalf("dashboard users = %+v", data.Users)
	}
	if len(data.Users[0].Answers) != 1 || data.Users[0].Answers[0].Text != "Oslo" {
		t.Fatalf("dashboard answers = %+v", data.Users[0].Answers)
	}
}

func isAPIStatus(err error, status int) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
