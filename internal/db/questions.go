package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// QuestionStatus values of the solve lifecycle.
const (
	QuestionPending  = "pending"
	QuestionRunning  = "running"
	QuestionAnswered = "answered"
	QuestionFailed   = "failed"
)

type conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

// Queries is the data access layer for solve jobs.
type Queries struct {
	conn conn
}

func New(c conn) *Queries {
	return &Queries{conn: c}
}

// Question is one queued or answered solve job.
type Question struct {
	ID           string          `json:"id"`
	Question     string          `json:"question"`
	Steps        json.RawMessage `json:"steps"`
	ForceChunk   bool            `json:"force_chunk"`
	Status       string          `json:"status"`
	Answer       string          `json:"answer"`
	SubResults   json.RawMessage `json:"sub_results"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

const questionColumns = "id, question, steps, force_chunk, status, answer, sub_results, error_message, created_at, updated_at"

func scanQuestion(row pgx.Row) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.Question, &q.Steps, &q.ForceChunk, &q.Status, &q.Answer, &q.SubResults, &q.ErrorMessage, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (q *Queries) CreateQuestion(ctx context.Context, id, question string, steps json.RawMessage, forceChunk bool) (Question, error) {
	if steps == nil {
		steps = json.RawMessage("[]")
	}
	row := q.conn.QueryRow(ctx,
		"INSERT INTO questions (id, question, steps, force_chunk) VALUES ($1, $2, $3, $4) RETURNING "+questionColumns,
		id, question, steps, forceChunk,
	)
	return scanQuestion(row)
}

func (q *Queries) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := q.conn.QueryRow(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE id = $1",
		id,
	)
	return scanQuestion(row)
}

func (q *Queries) ListQuestions(ctx context.Context, limit int) ([]Question, error) {
	rows, err := q.conn.Query(ctx,
		"SELECT "+questionColumns+" FROM questions ORDER BY created_at DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, question)
	}
	return out, rows.Err()
}

// TryStartQuestion claims a pending question for execution. It returns
// pgx.ErrNoRows when the question was already claimed by another worker.
func (q *Queries) TryStartQuestion(ctx context.Context, id string) error {
	row := q.conn.QueryRow(ctx,
		"UPDATE questions SET status = $2, updated_at = now() WHERE id = $1 AND status = $3 RETURNING id",
		id, QuestionRunning, QuestionPending,
	)
	var claimed string
	return row.Scan(&claimed)
}

func (q *Queries) SetQuestionAnswer(ctx context.Context, id, answer string, subResults json.RawMessage) error {
	if subResults == nil {
		subResults = json.RawMessage("[]")
	}
	_, err := q.conn.Exec(ctx,
		"UPDATE questions SET status = $2, answer = $3, sub_results = $4, error_message = '', updated_at = now() WHERE id = $1",
		id, QuestionAnswered, answer, subResults,
	)
	return err
}

func (q *Queries) SetQuestionFailed(ctx context.Context, id, message string) error {
	_, err := q.conn.Exec(ctx,
		"UPDATE questions SET status = $2, error_message = $3, updated_at = now() WHERE id = $1",
		id, QuestionFailed, message,
	)
	return err
}

func (q *Queries) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	tag, err := q.conn.Exec(ctx, "DELETE FROM questions WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) ResetQuestionToPending(ctx context.Context, id string) error {
	_, err := q.conn.Exec(ctx,
		"UPDATE questions SET status = $2, updated_at = now() WHERE id = $1 AND status <> $3",
		id, QuestionPending, QuestionAnswered,
	)
	return err
}

// GetStaleQuestions returns questions stuck in the running state, most
// likely left behind by a crashed worker.
func (q *Queries) GetStaleQuestions(ctx context.Context, olderThan time.Duration) ([]Question, error) {
	rows, err := q.conn.Query(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE status = $1 AND updated_at < now() - $2::interval",
		QuestionRunning, olderThan.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, question)
	}
	return out, rows.Err()
}
