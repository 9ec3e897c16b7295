package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Quiz owns the shared game state and wires the store to the fan-out:
// every state-changing action persists first, then notifies connected
// participants through the registry.
type Quiz struct {
	cfg   *Config
	store Store
	reg   *Registry
}

func newQuiz(cfg *Config, store Store, reg *Registry) *Quiz {
	return &Quiz{
		cfg:   cfg,
		store: store,
		reg:   reg,
	}
}

// publish fans an event out after the authoritative write has committed.
// Best-effort: the delivered count is logged and never surfaced to the
// action that triggered it, and a failed client only shows up as a
// smaller count.
func (q *Quiz) publish(event any) {
	payload := marshalEvent(event)
	count := q.reg.Broadcast(payload)

	logf(q.cfg, "PUBLISH: %s to %d clients", payload, count)
}

// setActiveQuestion advances the game to question n. The persistence
// write and the broadcast are sequential, not transactional; clients that
// miss the event reconcile by re-reading /api/state on reconnect.
func (q *Quiz) setActiveQuestion(ctx context.Context, n int) (*GameState, error) {
	state, err := q.store.UpdateGameState(ctx, n)
	if err != nil {
		return nil, err
	}

	q.publish(showQuestionEvent(n))

	return state, nil
}

type joinRequest struct {
	Name string `json:"name"`
}

type answerRequest struct {
	UserID         string `json:"userId"`
	Text           string `json:"text"`
	QuestionNumber int    `json:"questionNumber"`
}

type updateAnswerRequest struct {
	Text string `json:"text"`
}

type questionRequest struct {
	QuestionNumber int `json:"questionNumber"`
}

type pointsRequest struct {
	Points int `json:"points"`
}

type dashboardResponse struct {
	Users       []UserWithAnswers `json:"users"`
	State       *GameState        `json:"state"`
	ClientCount int               `json:"clientCount"`
}

func (q *Quiz) serveJoin() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeJSONError(w, http.StatusBadRequest, "name is required")
			return
		}

		user, err := q.store.FindOrCreateUser(r.Context(), req.Name)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to join")
			logf(q.cfg, "ERROR: join %q: %v", req.Name, err)

			return
		}

		q.publish(userCreatedEvent(user))

		logf(q.cfg, "JOIN: %q (%s) from %s", user.Name, user.ID, realIP(r))

		writeJSON(w, http.StatusOK, user)
	}
}

// serveState lets reconnecting clients reconcile: a participant that
// missed SHOW_QUESTION while offline reads the current question here.
func (q *Quiz) serveState() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		state, err := q.store.GetOrCreateGameState(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to read game state")
			logf(q.cfg, "ERROR: game state: %v", err)

			return
		}

		writeJSON(w, http.StatusOK, state)
	}
}

func (q *Quiz) serveSubmitAnswer() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Text == "" || req.QuestionNumber < 1 {
			writeJSONError(w, http.StatusBadRequest, "userId, text and questionNumber are required")
			return
		}

		state, err := q.store.GetOrCreateGameState(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to read game state")
			logf(q.cfg, "ERROR: game state: %v", err)

			return
		}
		if state.Status != StatusActive || state.CurrentQuestion == nil || *state.CurrentQuestion != req.QuestionNumber {
			writeJSONError(w, http.StatusConflict, ErrInactiveQuestion.Error())
			return
		}

		answer, err := q.store.CreateAnswer(r.Context(), req.UserID, req.Text, req.QuestionNumber)
		switch {
		case errors.Is(err, ErrDuplicateAnswer):
			writeJSONError(w, http.StatusConflict, ErrDuplicateAnswer.Error())
			return
		case errors.Is(err, ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "unknown user")
			return
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, "failed to save answer")
			logf(q.cfg, "ERROR: create answer: %v", err)

			return
		}

		q.publish(answerSubmittedEvent(answer))

		writeJSON(w, http.StatusCreated, answer)
	}
}

func (q *Quiz) serveUpdateAnswer() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req updateAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}

		answer, err := q.store.UpdateAnswer(r.Context(), ps.ByName("id"), req.Text)
		switch {
		case errors.Is(err, ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "unknown answer")
			return
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, "failed to update answer")
			logf(q.cfg, "ERROR: update answer: %v", err)

			return
		}

		q.publish(answerUpdatedEvent(answer))

		writeJSON(w, http.StatusOK, answer)
	}
}

// serveStartGame broadcasts START_GAME, moving every connected
// participant from the waiting room to the game view. Game state is
// untouched until the host shows the first question.
func (q *Quiz) serveStartGame() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		count := q.reg.Broadcast(marshalEvent(startGameEvent()))

		logf(q.cfg, "START: Game started by %s, %d clients notified", realIP(r), count)

		writeJSON(w, http.StatusOK, broadcastResponse{
			Success:     true,
			ClientCount: count,
		})
	}
}

func (q *Quiz) serveShowQuestion() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req questionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionNumber < 1 {
			writeJSONError(w, http.StatusBadRequest, "questionNumber is required")
			return
		}

		state, err := q.setActiveQuestion(r.Context(), req.QuestionNumber)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to update game state")
			logf(q.cfg, "ERROR: show question %d: %v", req.QuestionNumber, err)

			return
		}

		logf(q.cfg, "QUESTION: %d shown by %s", req.QuestionNumber, realIP(r))

		writeJSON(w, http.StatusOK, state)
	}
}

func (q *Quiz) serveDashboardData() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		users, err := q.store.ListUsers(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to list users")
			logf(q.cfg, "ERROR: list users: %v", err)

			return
		}

		state, err := q.store.GetOrCreateGameState(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to read game state")
			logf(q.cfg, "ERROR: game state: %v", err)

			return
		}

		writeJSON(w, http.StatusOK, dashboardResponse{
			Users:       users,
			State:       state,
			ClientCount: q.reg.Count(),
		})
	}
}

func (q *Quiz) serveSetPoints() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req pointsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "points is required")
			return
		}

		answer, err := q.store.SetAnswerPoints(r.Context(), ps.ByName("id"), req.Points)
		switch {
		case errors.Is(err, ErrInvalidRange):
			writeJSONError(w, http.StatusBadRequest, ErrInvalidRange.Error())
			return
		case errors.Is(err, ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "unknown answer")
			return
		case err != nil:
			writeJSONError(w, http.StatusInternalServerError, "failed to set points")
			logf(q.cfg, "ERROR: set points: %v", err)

			return
		}

		writeJSON(w, http.StatusOK, answer)
	}
}

// requireAdmin guards host-only endpoints with a shared bearer token.
// With no token configured every caller is trusted, which is fine on a
// living-room network and not anywhere else.
func (q *Quiz) requireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if q.cfg.adminToken != "" && r.Header.Get("Authorization") != "Bearer "+q.cfg.adminToken {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r, ps)
	}
}

func registerQuiz(cfg *Config, store Store, reg *Registry, mux *httprouter.Router) {
	q := newQuiz(cfg, store, reg)

	mux.GET(cfg.prefix+"/api/events", serveSubscribe(cfg, reg))
	mux.GET(cfg.prefix+"/api/ws", serveWS(cfg, reg))
	mux.POST(cfg.prefix+"/api/broadcast", q.requireAdmin(serveBroadcast(cfg, reg)))

	mux.POST(cfg.prefix+"/api/join", q.serveJoin())
	mux.GET(cfg.prefix+"/api/state", q.serveState())
	mux.POST(cfg.prefix+"/api/answers", q.serveSubmitAnswer())
	mux.PUT(cfg.prefix+"/api/answers/:id", q.serveUpdateAnswer())

	mux.POST(cfg.prefix+"/api/admin/start", q.requireAdmin(q.serveStartGame()))
	mux.POST(cfg.prefix+"/api/admin/question", q.requireAdmin(q.serveShowQuestion()))
	mux.GET(cfg.prefix+"/api/admin/answers", q.requireAdmin(q.serveDashboardData()))
	mux.POST(cfg.prefix+"/api/admin/answers/:id/points", q.requireAdmin(q.serveSetPoints()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
