package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/moa/backend/internal/db"
	"github.com/OFFIS-RIT/moa/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/moa/backend/pkg/logger"
)

func DeleteQuestionHandler(c echo.Context) error {
	type deleteQuestionParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(deleteQuestionParams)
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

	deleted, err := db.New(conn).DeleteQuestion(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to delete question", "question_id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Question not found"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Question deleted successfully"})
}
