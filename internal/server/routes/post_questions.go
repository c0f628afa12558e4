package routes

import (
	"encoding/json"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/moa/backend/internal/db"
	"github.com/OFFIS-RIT/moa/backend/internal/queue"
	"github.com/OFFIS-RIT/moa/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/moa/backend/internal/util"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

// CreateQuestionHandler stores a planned question and enqueues it for the
// worker. The response carries the question id so clients can poll for the
// answer or subscribe to the progress topic.
func CreateQuestionHandler(c echo.Context) error {
	type solveStepBody struct {
		SubQuery  string `json:"sub_query" validate:"required"`
		LogicForm string `json:"logic_form" validate:"required"`
	}

	type createQuestionBody struct {
		Question   string          `json:"question" validate:"required"`
		Steps      []solveStepBody `json:"steps" validate:"required,min=1,dive"`
		ForceChunk bool            `json:"force_chunk"`
	}

	type createQuestionResponse struct {
		Message  string       `json:"message"`
		Question *db.Question `json:"question,omitempty"`
	}

	data := new(createQuestionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createQuestionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createQuestionResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createQuestionResponse{
			Message: "Unauthorized",
		})
	}

	steps := make([]queue.SolveStep, 0, len(data.Steps))
	for _, step := range data.Steps {
		steps = append(steps, queue.SolveStep{
			SubQuery:  step.SubQuery,
			LogicForm: step.LogicForm,
		})
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createQuestionResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	question, err := q.CreateQuestion(ctx, util.NewTraceID(), data.Question, stepsJSON, data.ForceChunk)
	if err != nil {
		logger.Error("Failed to create question", "err", err)
		return c.JSON(http.StatusInternalServerError, createQuestionResponse{
			Message: "Internal server error",
		})
	}

	queueData, err := json.Marshal(queue.QueueSolveMsg{
		QuestionID: question.ID,
		Question:   question.Question,
		Steps:      steps,
		ForceChunk: data.ForceChunk,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createQuestionResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.SolveQueue, queueData); err != nil {
		logger.Error("Failed to publish to solve_queue", "question_id", question.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createQuestionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createQuestionResponse{
		Message:  "Question queued successfully",
		Question: &question,
	})
}
