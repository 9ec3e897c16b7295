package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Game state status values. There is no transition back to WAITING; once
// the host shows a question the game stays ACTIVE until the process ends.
const (
	StatusWaiting = "WAITING"
	StatusActive  = "ACTIVE"
)

// maxAnswerPoints caps the score the dashboard can award per answer.
const maxAnswerPoints = 3

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAnswer  = errors.New("answer already submitted for this question")
	ErrInvalidRange     = errors.New("points must be between 0 and 3")
	ErrInactiveQuestion = errors.New("question is not currently active")
)

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

// GameState is the singleton record driving every participant's view:
// which question is up, and whether the game has left the waiting room.
type GameState struct {
	CurrentQuestion *int      `json:"currentQuestionNumber"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserWithAnswers is the dashboard's read model: one participant plus
// everything they have submitted, ordered by question number.
type UserWithAnswers struct {
	User
	Answers []Answer `json:"answers"`
}

// Store is the narrow data-access interface the quiz core needs from its
// relational collaborator. Two implementations exist: MemoryStore (the
// default) and PostgresStore (selected with --database-url).
type Store interface {
	FindOrCreateUser(ctx context.Context, name string) (*User, error)
	CreateAnswer(ctx context.Context, userID, text string, questionNumber int) (*Answer, error)
	UpdateAnswer(ctx context.Context, answerID, text string) (*Answer, error)
	SetAnswerPoints(ctx context.Context, answerID string, points int) (*Answer, error)
	GetOrCreateGameState(ctx context.Context) (*GameState, error)
	UpdateGameState(ctx context.Context, questionNumber int) (*GameState, error)
	ListUsers(ctx context.Context) ([]UserWithAnswers, error)
	Close()
}

type answerKey struct {
	userID         string
	questionNumber int
}

// MemoryStore keeps the whole quiz in process memory, which is all a
// single evening of party quiz needs. Everything is lost on restart.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]*User
	usersByName map[string]string
	answers     map[string]*Answer
	byQuestion  map[answerKey]string
	state       *GameState
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		usersByName: make(map[string]string),
		answers:     make(map[string]*Answer),
		byQuestion:  make(map[answerKey]string),
	}
}

func (ms *MemoryStore) FindOrCreateUser(_ context.Context, name string) (*User, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if id, ok := ms.usersByName[name]; ok {
		u := *ms.users[id]
		return &u, nil
	}

	u := &User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	ms.users[u.ID] = u
	ms.usersByName[name] = u.ID

	copied := *u
	return &copied, nil
}

func (ms *MemoryStore) CreateAnswer(_ context.Context, userID, text string, questionNumber int) (*Answer, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.users[userID]; !ok {
		return nil, ErrNotFound
	}

	key := answerKey{userID: userID, questionNumber: questionNumber}
	if _, ok := ms.byQuestion[key]; ok {
		return nil, ErrDuplicateAnswer
	}

	a := &Answer{
		ID:             uuid.NewString(),
		UserID:         userID,
		Text:           text,
		QuestionNumber: questionNumber,
		CreatedAt:      time.Now().UTC(),
	}
	ms.answers[a.ID] = a
	ms.byQuestion[key] = a.ID

	copied := *a
	return &copied, nil
}

func (ms *MemoryStore) UpdateAnswer(_ context.Context, answerID, text string) (*Answer, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	a, ok := ms.answers[answerID]
	if !ok {
		return nil, ErrNotFound
	}
	a.Text = text

	copied := *a
	return &copied, nil
}

func (ms *MemoryStore) SetAnswerPoints(_ context.Context, answerID string, points int) (*Answer, error) {
	if points < 0 || points > maxAnswerPoints {
		return nil, ErrInvalidRange
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	a, ok := ms.answers[answerID]
	if !ok {
		return nil, ErrNotFound
	}
	a.Points = points

	copied := *a
	return &copied, nil
}

// GetOrCreateGameState returns the singleton state, creating it in
// WAITING on first access. The store mutex makes the check-then-create
// sequence safe under concurrent first access.
func (ms *MemoryStore) GetOrCreateGameState(_ context.Context) (*GameState, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.state == nil {
		ms.state = &GameState{
			Status:    StatusWaiting,
			UpdatedAt: time.Now().UTC(),
		}
	}

	copied := *ms.state
	return &copied, nil
}

func (ms *MemoryStore) UpdateGameState(_ context.Context, questionNumber int) (*GameState, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.state == nil {
		ms.state = &GameState{}
	}
	n := questionNumber
	ms.state.CurrentQuestion = &n
	ms.state.Status = StatusActive
	ms.state.UpdatedAt = time.Now().UTC()

	copied := *ms.state
	return &copied, nil
}

func (ms *MemoryStore) ListUsers(_ context.Context) ([]UserWithAnswers, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	users := make([]UserWithAnswers, 0, len(ms.users))
	for _, u := range ms.users {
		users = append(users, UserWithAnswers{User: *u, Answers: []Answer{}})
	}

	// Newest participants first, matching the dashboard ordering.
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Name < users[j].Name
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})

	index := make(map[string]int, len(users))
	for i, u := range users {
		index[u.ID] = i
	}
	for _, a := range ms.answers {
		i := index[a.UserID]
		users[i].Answers = append(users[i].Answers, *a)
	}
	for i := range users {
		sort.Slice(users[i].Answers, func(a, b int) bool {
			return users[i].Answers[a].QuestionNumber < users[i].Answers[b].QuestionNumber
		})
	}

	return users, nil
}

func (ms *MemoryStore) Close() {}
