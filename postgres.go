package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users (id),
	text TEXT NOT NULL,
	question_number INT NOT NULL,
	points INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, question_number)
);

CREATE TABLE IF NOT EXISTS game_state (
	id INT PRIMARY KEY,
	current_question INT,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// PostgresStore implements Store on top of a pgx connection pool. The
// (user_id, question_number) and game_state primary-key constraints carry
// the duplicate-answer and singleton-row invariants, so concurrent
// writers cannot violate them regardless of interleaving.
type PostgresStore struct {
	db *pgxpool.Pool
}

func newPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (ps *PostgresStore) FindOrCreateUser(ctx context.Context, name string) (*User, error) {
	_, err := ps.db.Exec(ctx,
		`INSERT INTO users (id, name, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		uuid.NewString(), name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var u User
	err = ps.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM users WHERE name = $1`,
		name,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &u, nil
}

func (ps *PostgresStore) CreateAnswer(ctx context.Context, userID, text string, questionNumber int) (*Answer, error) {
	a := Answer{
		ID:             uuid.NewString(),
		UserID:         userID,
		Text:           text,
		QuestionNumber: questionNumber,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := ps.db.Exec(ctx,
		`INSERT INTO answers (id, user_id, text, question_number, points, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5)`,
		a.ID, a.UserID, a.Text, a.QuestionNumber, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == uniqueViolation:
				return nil, ErrDuplicateAnswer
			case pgErr.Code == "23503": // unknown user
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("insert answer: %w", err)
	}

	return &a, nil
}

func (ps *PostgresStore) UpdateAnswer(ctx context.Context, answerID, text string) (*Answer, error) {
	var a Answer
	err := ps.db.QueryRow(ctx,
		`UPDATE answers SET text = $2 WHERE id = $1
		 RETURNING id, user_id, text, question_number, points, created_at`,
		answerID, text,
	).Scan(&a.ID, &a.UserID, &a.Text, &a.QuestionNumber, &a.Points, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update answer: %w", err)
	}

	return &a, nil
}

func (ps *PostgresStore) SetAnswerPoints(ctx context.Context, answerID string, points int) (*Answer, error) {
	if points < 0 || points > maxAnswerPoints {
		return nil, ErrInvalidRange
	}

	var a Answer
	err := ps.db.QueryRow(ctx,
		`UPDATE answers SET points = $2 WHERE id = $1
		 RETURNING id, user_id, text, question_number, points, created_at`,
		answerID, points,
	).Scan(&a.ID, &a.UserID, &a.Text, &a.QuestionNumber, &a.Points, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update points: %w", err)
	}

	return &a, nil
}

// GetOrCreateGameState relies on the fixed primary key plus ON CONFLICT
// DO NOTHING, so two simultaneous first accesses still produce exactly
// one row.
func (ps *PostgresStore) GetOrCreateGameState(ctx context.Context) (*GameState, error) {
	_, err := ps.db.Exec(ctx,
		`INSERT INTO game_state (id, current_question, status, updated_at)
		 VALUES (1, NULL, $1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		StatusWaiting, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert game state: %w", err)
	}

	var state GameState
	err = ps.db.QueryRow(ctx,
		`SELECT current_question, status, updated_at FROM game_state WHERE id = 1`,
	).Scan(&state.CurrentQuestion, &state.Status, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("select game state: %w", err)
	}

	return &state, nil
}

func (ps *PostgresStore) UpdateGameState(ctx context.Context, questionNumber int) (*GameState, error) {
	if _, err := ps.GetOrCreateGameState(ctx); err != nil {
		return nil, err
	}

	var state GameState
	err := ps.db.QueryRow(ctx,
		`UPDATE game_state SET current_question = $1, status = $2, updated_at = $3 WHERE id = 1
		 RETURNING current_question, status, updated_at`,
		questionNumber, StatusActive, time.Now().UTC(),
	).Scan(&state.CurrentQuestion, &state.Status, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update game state: %w", err)
	}

	return &state, nil
}

func (ps *PostgresStore) ListUsers(ctx context.Context) ([]UserWithAnswers, error) {
	rows, err := ps.db.Query(ctx,
		`SELECT id, name, created_at FROM users ORDER BY created_at DESC, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserWithAnswers
	index := make(map[string]int)
	for rows.Next() {
		var u UserWithAnswers
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Answers = []Answer{}
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	answerRows, err := ps.db.Query(ctx,
		`SELECT id, user_id, text, question_number, points, created_at
		 FROM answers ORDER BY question_number, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var a Answer
		if err := answerRows.Scan(&a.ID, &a.UserID, &a.Text, &a.QuestionNumber, &a.Points, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[a.UserID]; ok {
			users[i].Answers = append(users[i].Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return users, nil
}

func (ps *PostgresStore) Close() {
	ps.db.Close()
}
