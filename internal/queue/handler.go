package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OFFIS-RIT/moa/backend/internal/db"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// staleAfter is how long a question may sit in the running state before a
// restarted worker assumes its original owner died.
const staleAfter = 30 * time.Minute

// RecoverStaleQuestions resets questions stuck in the running state and
// republishes them to the solve queue. Called once on worker startup so a
// crash mid-solve does not strand the question forever.
func RecoverStaleQuestions(ctx context.Context, conn *pgxpool.Pool, ch *amqp091.Channel) {
	q := db.New(conn)

	stale, err := q.GetStaleQuestions(ctx, staleAfter)
	if err != nil {
		logger.Warn("[Queue] Failed to look up stale questions", "err", err)
		return
	}

	for _, question := range stale {
		if err := q.ResetQuestionToPending(ctx, question.ID); err != nil {
			logger.Warn("[Queue] Failed to reset stale question", "question_id", question.ID, "err", err)
			continue
		}

		var steps []SolveStep
		if err := json.Unmarshal(question.Steps, &steps); err != nil {
			logger.Warn("[Queue] Stale question has unreadable steps", "question_id", question.ID, "err", err)
			continue
		}

		msg, err := json.Marshal(QueueSolveMsg{
			QuestionID: question.ID,
			Question:   question.Question,
			Steps:      steps,
			ForceChunk: question.ForceChunk,
		})
		if err != nil {
			logger.Warn("[Queue] Failed to serialize stale question", "question_id", question.ID, "err", err)
			continue
		}
		if err := PublishFIFO(ch, SolveQueue, msg); err != nil {
			logger.Warn("[Queue] Failed to republish stale question", "question_id", question.ID, "err", err)
			continue
		}

		logger.Info("[Queue] Recovered stale question", "question_id", question.ID)
	}
}

// ResetQuestionForRetry flips a question back to pending before its message
// re-enters the retry queue, so the next delivery can claim it again.
func ResetQuestionForRetry(ctx context.Context, conn *pgxpool.Pool, msgBody []byte) {
	data := new(QueueSolveMsg)
	if err := json.Unmarshal(msgBody, data); err != nil {
		logger.Warn("[Queue] Failed to parse message for retry reset", "err", err)
		return
	}
	if data.QuestionID == "" {
		return
	}

	if err := db.New(conn).ResetQuestionToPending(ctx, data.QuestionID); err != nil {
		logger.Warn("[Queue] Failed to reset question for retry", "question_id", data.QuestionID, "err", err)
	}
}
