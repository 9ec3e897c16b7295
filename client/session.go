package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultReconnectDelay matches the browser pages: a dropped stream is
// reopened after a fixed pause, with no backoff and no retry cap. The
// host may be offline for a while and come back.
const DefaultReconnectDelay = 3 * time.Second

// Session holds one participant's long-lived event subscription. Create
// it with NewSession, set the callbacks, then call Run.
type Session struct {
	// ReconnectDelay overrides DefaultReconnectDelay when positive.
	ReconnectDelay time.Duration

	// OnStartGame fires when the host starts the game.
	OnStartGame func()

	// OnShowQuestion fires when the host shows a question.
	OnShowQuestion func(questionNumber int)

	// OnEvent, when set, receives every broadcast event except the
	// session's own handshake.
	OnEvent func(Event)

	client *Client

	mu       sync.Mutex
	clientID string
	answers  map[int]*Answer
}

func NewSession(c *Client) *Session {
	return &Session{
		client:  c,
		answers: make(map[int]*Answer),
	}
}

// ClientID returns the id the server assigned in the handshake of the
// most recent connection, or empty before the first one completes.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Answer returns the session's cached answer for a question, if one was
// submitted. The cache only lives as long as the Session value does.
func (s *Session) Answer(questionNumber int) (*Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionNumber]
	return a, ok
}

// Submit saves the participant's answer for a question: a create on first
// submission, an update via the cached answer id afterwards.
func (s *Session) Submit(ctx context.Context, userID, text string, questionNumber int) (*Answer, error) {
	s.mu.Lock()
	cached := s.answers[questionNumber]
	s.mu.Unlock()

	var (
		a   *Answer
		err error
	)
	if cached != nil {
		a, err = s.client.UpdateAnswer(ctx, cached.ID, text)
	} else {
		a, err = s.client.SubmitAnswer(ctx, userID, text, questionNumber)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.answers[a.QuestionNumber] = a
	s.mu.Unlock()

	return a, nil
}

// Run subscribes to the server's event stream and dispatches events until
// ctx is done. Any connection failure triggers a reconnect after the
// fixed delay, forever.
func (s *Session) Run(ctx context.Context) error {
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for {
		_ = s.subscribe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Session) subscribe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.BaseURL+"/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		s.dispatch(data)
	}

	return scanner.Err()
}

func (s *Session) dispatch(data string) {
	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		// Manual broadcasts may carry plain text.
		if data == EventStartGame && s.OnStartGame != nil {
			s.OnStartGame()
		}
		return
	}

	switch event.Type {
	case EventConnected:
		// Our own handshake; remember the id, don't surface it.
		s.mu.Lock()
		s.clientID = event.ClientID
		s.mu.Unlock()

		return
	case EventStartGame:
		if s.OnStartGame != nil {
			s.OnStartGame()
		}
	case EventShowQuestion:
		if s.OnShowQuestion != nil {
			s.OnShowQuestion(event.QuestionNumber)
		}
	}

	if s.OnEvent != nil {
		s.OnEvent(event)
	}
}
