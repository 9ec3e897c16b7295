// Package client is a small Go client for a quizbox server: plain
// request/response calls plus a long-lived Session that mirrors the
// behavior of the browser pages, including reconnect handling and the
// per-question answer cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	// BaseURL is the server root, without a trailing slash.
	BaseURL string

	// AdminToken, when set, is sent as a bearer token on every request
	// so host-only endpoints work.
	AdminToken string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Answer struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Text           string    `json:"text"`
	QuestionNumber int       `json:"questionNumber"`
	Points         int       `json:"points"`
	CreatedAt      time.Time `json:"createdAt"`
}

type GameState struct {
	CurrentQuestion *int      `json:"currentQuestionNumber"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Event is the decoded form of a broadcast frame. Fields not relevant to
// the event's type are zero.
type Event struct {
	Type           string `json:"type"`
	ClientID       string `json:"clientId"`
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	AnswerID       string `json:"answerId"`
	QuestionNumber int    `json:"questionNumber"`
	Timestamp      string `json:"timestamp"`
}

// Well-known event types.
const (
	EventConnected       = "connected"
	EventUserCreated     = "USER_CREATED"
	EventAnswerSubmitted = "ANSWER_SUBMITTED"
	EventAnswerUpdated   = "ANSWER_UPDATED"
	EventShowQuestion    = "SHOW_QUESTION"
	EventStartGame       = "START_GAME"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Join registers a participant by name, returning the existing user when
// the name is already taken.
func (c *Client) Join(ctx context.Context, name string) (*User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/api/join", map[string]string{"name": name}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// State reads the current game state, creating it on first access.
func (c *Client) State(ctx context.Context) (*GameState, error) {
	var state GameState
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &state)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, userID, text string, questionNumber int) (*Answer, error) {
	var a Answer
	err := c.do(ctx, http.MethodPost, "/api/answers", map[string]any{
		"userId":         userID,
		"text":           text,
		"questionNumber": questionNumber,
	}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) UpdateAnswer(ctx context.Context, answerID, text string) (*Answer, error) {
	var a Answer
	err := c.do(ctx, http.MethodPut, "/api/answers/"+answerID, map[string]string{"text": text}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) SetAnswerPoints(ctx context.Context, answerID string, points int) (*Answer, error) {
	var a Answer
	err := c.do(ctx, http.MethodPost, "/api/admin/answers/"+answerID+"/points", map[string]int{"points": points}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// StartGame broadcasts START_GAME to every connected participant and
// returns how many were notified.
func (c *Client) StartGame(ctx context.Context) (int, error) {
	var res struct {
		ClientCount int `json:"clientCount"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin/start", nil, &res)
	if err != nil {
		return 0, err
	}
	return res.ClientCount, nil
}

// ShowQuestion advances the game to the given question.
func (c *Client) ShowQuestion(ctx context.Context, questionNumber int) (*GameState, error) {
	var state GameState
	err := c.do(ctx, http.MethodPost, "/api/admin/question", map[string]int{"questionNumber": questionNumber}, &state)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Broadcast injects a raw payload into the fan-out, delivered verbatim to
// every connected client.
func (c *Client) Broadcast(ctx context.Context, message string) (int, error) {
	var res struct {
		ClientCount int `json:"clientCount"`
	}
	err := c.do(ctx, http.MethodPost, "/api/broadcast", map[string]string{"message": message}, &res)
	if err != nil {
		return 0, err
	}
	return res.ClientCount, nil
}
