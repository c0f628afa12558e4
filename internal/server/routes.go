package server

import (
	"github.com/OFFIS-RIT/moa/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/moa/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Question routes
	apiRoutes.GET("/questions", routes.GetQuestionsHandler, middleware.RequirePermission("question.view"))
	apiRoutes.GET("/questions/:id", routes.GetQuestionHandler, middleware.RequirePermission("question.view"))
	apiRoutes.POST("/questions", routes.CreateQuestionHandler, middleware.RequirePermission("question.create"))
	apiRoutes.DELETE("/questions/:id", routes.DeleteQuestionHandler, middleware.RequirePermission("question.delete"))

	// Synchronous solve route
	apiRoutes.POST("/solve", routes.SolveHandler, middleware.RequirePermission("solve.run"))
}
