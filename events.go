package main

import (
	"encoding/json"
	"time"
)

// Event types shared between the server-side actions and the participant
// clients. The registry itself treats payloads as opaque strings; this is
// the convention callers follow, not something the fan-out enforces.
const (
	typeConnected       = "connected"
	typeUserCreated     = "USER_CREATED"
	typeAnswerSubmitted = "ANSWER_SUBMITTED"
	typeAnswerUpdated   = "ANSWER_UPDATED"
	typeShowQuestion    = "SHOW_QUESTION"
	typeStartGame       = "START_GAME"
)

// ConnectedEvent is the handshake, sent to a single new subscriber as its
// very first frame so it can confirm registration completed before
// relying on later broadcasts.
type ConnectedEvent struct {
	Type      string `json:"type"` // "connected"
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}

type UserCreatedEvent struct {
	Type      string `json:"type"` // "USER_CREATED"
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

type AnswerSubmittedEvent struct {
	Type           string `json:"type"` // "ANSWER_SUBMITTED"
	AnswerID       string `json:"answerId"`
	UserID         string `json:"userId"`
	QuestionNumber int    `json:"questionNumber"`
	Timestamp      string `json:"timestamp"`
}

type AnswerUpdatedEvent struct {
	Type      string `json:"type"` // "ANSWER_UPDATED"
	AnswerID  string `json:"answerId"`
	Timestamp string `json:"timestamp"`
}

type ShowQuestionEvent struct {
	Type           string `json:"type"` // "SHOW_QUESTION"
	QuestionNumber int    `json:"questionNumber"`
	Timestamp      string `json:"timestamp"`
}

type StartGameEvent struct {
	Type      string `json:"type"` // "START_GAME"
	Timestamp string `json:"timestamp"`
}

func eventTime() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func connectedEvent(clientID string) ConnectedEvent {
	return ConnectedEvent{Type: typeConnected, ClientID: clientID, Timestamp: eventTime()}
}

func userCreatedEvent(u *User) UserCreatedEvent {
	return UserCreatedEvent{Type: typeUserCreated, UserID: u.ID, Name: u.Name, Timestamp: eventTime()}
}

func answerSubmittedEvent(a *Answer) AnswerSubmittedEvent {
	return AnswerSubmittedEvent{
		Type:           typeAnswerSubmitted,
		AnswerID:       a.ID,
		UserID:         a.UserID,
		QuestionNumber: a.QuestionNumber,
		Timestamp:      eventTime(),
	}
}

func answerUpdatedEvent(a *Answer) AnswerUpdatedEvent {
	return AnswerUpdatedEvent{Type: typeAnswerUpdated, AnswerID: a.ID, Timestamp: eventTime()}
}

func showQuestionEvent(questionNumber int) ShowQuestionEvent {
	return ShowQuestionEvent{Type: typeShowQuestion, QuestionNumber: questionNumber, Timestamp: eventTime()}
}

func startGameEvent() StartGameEvent {
	return StartGameEvent{Type: typeStartGame, Timestamp: eventTime()}
}

// marshalEvent renders an event struct as the wire payload. The event
// structs above contain nothing json.Marshal can choke on.
func marshalEvent(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
