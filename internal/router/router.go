package router

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"usertasks/docs"
	"usertasks/internal/config"
	"usertasks/internal/handler"
	"usertasks/internal/service"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	authService service.AuthService,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	taskHandler *handler.TaskHandler,
) {
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(Metrics())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")
	requireAuth := BearerAuth(authService)

	// Auth routes
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/logout", authHandler.Logout, requireAuth)
	api.GET("/me", authHandler.Me, requireAuth)

	// User routes
	api.GET("/users", userHandler.ListUsers)
	api.GET("/users/:id", userHandler.GetUser)
	api.POST("/users", userHandler.CreateUser)
	api.PUT("/users/:id", userHandler.UpdateUser)
	api.DELETE("/users/:id", userHandler.DeleteUser, requireAuth)
	api.GET("/users/:id/tasks", userHandler.ListUserTasks, requireAuth)

	// Task routes
	api.GET("/tasks", taskHandler.ListTasks, requireAuth)
	api.GET("/tasks/expired", taskHandler.ListExpired)
	api.GET("/tasks/active", taskHandler.ListActive)
	api.GET("/tasks/search", taskHandler.Search)
	api.GET("/tasks/byuser/:userId", taskHandler.ListByUser)
	api.GET("/tasks/bydate/:date", taskHandler.ListByDate)
	api.GET("/tasks/:id", taskHandler.GetTask).Name = "tasks.get"
	api.POST("/tasks", taskHandler.CreateTask)
	api.PUT("/tasks/:id", taskHandler.UpdateTask)
	api.DELETE("/tasks/:id", taskHandler.DeleteTask)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func logLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
