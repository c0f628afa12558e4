package routes

import (
	"errors"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/moa/backend/internal/db"
	"github.com/OFFIS-RIT/moa/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

func GetQuestionsHandler(c echo.Context) error {
	type getQuestionsParams struct {
		Limit int `query:"limit"`
	}

	params := new(getQuestionsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	questions, err := q.ListQuestions(ctx, params.Limit)
	if err != nil {
		logger.Error("Failed to list questions", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if questions == nil {
		questions = []db.Question{}
	}

	return c.JSON(http.StatusOK, questions)
}

func GetQuestionHandler(c echo.Context) error {
	type getQuestionParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(getQuestionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	question, err := q.GetQuestion(ctx, params.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Question not found"})
		}

		logger.Error("Failed to get question", "question_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, question)
}
