package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJoinRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/join" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Name != "Kari" {
			t.Errorf("name = %q", body.Name)
		}

		json.NewEncoder(w).Encode(map[string]string{"id": "u-1", "name": body.Name})
	}))
	defer srv.Close()

	user, err := New(srv.URL).Join(context.Background(), "Kari")
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if user.ID != "u-1" || user.Name != "Kari" {
		t.Fatalf("Join returned %+v", user)
	}
}

func TestAdminTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]int{"clientCount": 0})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.AdminToken = "hemmelig"
	if _, err := c.StartGame(context.Background()); err != nil {
		t.Fatalf("StartGame error: %v", err)
	}
	if got != "Bearer hemmelig" {
		t.Fatalf("Authorization header = %q", got)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "duplicate_answer"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).SubmitAnswer(context.Background(), "u-1", "Oslo", 1)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "duplicate_answer" {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestStartGameCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "clientCount": 7})
	}))
	defer srv.Close()

	count, err := New(srv.URL).StartGame(context.Background())
	if err != nil {
		t.Fatalf("StartGame error: %v", err)
	}
	if count != 7 {
		t.Fatalf("StartGame count = %d, want 7", count)
	}
}
