package routes

import (
	"encoding/json"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/moa/backend/internal/queue"
	"github.com/OFFIS-RIT/moa/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
	"github.com/OFFIS-RIT/moa/backend/pkg/solver"
)

// SolveHandler answers a planned question synchronously. Nothing is stored;
// the full breakdown comes back in the response. Long plans should go
// through POST /questions instead.
func SolveHandler(c echo.Context) error {
	type solveStepBody struct {
		SubQuery  string `json:"sub_query" validate:"required"`
		LogicForm string `json:"logic_form" validate:"required"`
	}

	type solveBody struct {
		Question   string          `json:"question" validate:"required"`
		Steps      []solveStepBody `json:"steps" validate:"required,min=1,dive"`
		ForceChunk bool            `json:"force_chunk"`
	}

	type solveResponse struct {
		Message    string                      `json:"message"`
		Answer     string                      `json:"answer,omitempty"`
		SubResults []json.RawMessage           `json:"sub_results,omitempty"`
		Trace      []solver.SolveTraceSnapshot `json:"trace,omitempty"`
	}

	data := new(solveBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, solveResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, solveResponse{
			Message: "Invalid request body",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, solveResponse{
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

	ctx := c.Request().Context()
	pipeline := c.(*middleware.AppContext).App.Solver
	trace := solver.NewSolveTrace()

	result, err := pipeline.Solve(ctx, data.Question, steps, data.ForceChunk, trace)
	if err != nil {
		logger.Error("Failed to solve question", "err", err)
		return c.JSON(http.StatusInternalServerError, solveResponse{
			Message: "Internal server error",
			Trace:   trace.Snapshot(),
		})
	}

	subResults := make([]json.RawMessage, 0, len(result.SubResults))
	for _, sub := range result.SubResults {
		raw, err := sub.ToJSON()
		if err != nil {
			logger.Error("Failed to serialize sub result", "err", err)
			return c.JSON(http.StatusInternalServerError, solveResponse{
				Message: "Internal server error",
			})
		}
		subResults = append(subResults, raw)
	}

	return c.JSON(http.StatusOK, solveResponse{
		Message:    "Question solved successfully",
		Answer:     result.Answer,
		SubResults: subResults,
		Trace:      trace.Snapshot(),
	})
}
