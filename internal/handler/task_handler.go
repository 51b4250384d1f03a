package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"usertasks/internal/model"
	"usertasks/internal/service"
)

// TaskHandler handles task endpoints.
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRequest is the body of task create and update.
type TaskRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	AssigneeID  uint   `json:"assigneeId"`
	// DueDate is RFC 3339 or yyyy-MM-dd.
	DueDate string `json:"dueDate" validate:"required"`
}

func (h *TaskHandler) bindTask(c echo.Context) (service.TaskInput, error) {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return service.TaskInput{}, badRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return service.TaskInput{}, badRequest(err.Error())
	}
	due, ok := parseDate(req.DueDate)
	if !ok {
		return service.TaskInput{}, badRequest("invalid dueDate")
	}
	return service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		DueDate:     due,
	}, nil
}

func (h *TaskHandler) list(c echo.Context, tasks []model.Task, err error) error {
	if err != nil {
		return respondError(err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

// ListTasks godoc
// @Summary List all tasks
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Task
// @Failure 401 {object} errors.ErrorResponse
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c echo.Context) error {
	tasks, err := h.taskService.List(c.Request().Context())
	return h.list(c, tasks, err)
}

// GetTask godoc
// @Summary Get a task by id
// @Tags tasks
// @Produce json
// @Param id path int true "Task ID"
// @Success 200 {object} model.Task
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	task, err := h.taskService.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// CreateTask godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param task body TaskRequest true "Task payload"
// @Success 201 {object} model.Task
// @Failure 400 {object} errors.ErrorResponse
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	in, err := h.bindTask(c)
	if err != nil {
		return err
	}
	task, err := h.taskService.Create(c.Request().Context(), in)
	if err != nil {
		return respondError(err)
	}
	c.Response().Header().Set(echo.HeaderLocation, c.Echo().Reverse("tasks.get", task.ID))
	return c.JSON(http.StatusCreated, task)
}

// UpdateTask godoc
// @Summary Replace a task
// @Tags tasks
// @Accept json
// @Param id path int true "Task ID"
// @Param task body TaskRequest true "Task payload"
// @Success 204
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	in, err := h.bindTask(c)
	if err != nil {
		return err
	}
	if err := h.taskService.Update(c.Request().Context(), id, in); err != nil {
		return respondError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Param id path int true "Task ID"
// @Success 204
// @Failure 404 {object} errors.ErrorResponse
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.taskService.Delete(c.Request().Context(), id); err != nil {
		return respondError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListExpired godoc
// @Summary List tasks past their due date
// @Tags tasks
// @Produce json
// @Success 200 {array} model.Task
// @Router /tasks/expired [get]
func (h *TaskHandler) ListExpired(c echo.Context) error {
	tasks, err := h.taskService.ListExpired(c.Request().Context())
	return h.list(c, tasks, err)
}

// ListActive godoc
// @Summary List tasks not yet due
// @Tags tasks
// @Produce json
// @Success 200 {array} model.Task
// @Router /tasks/active [get]
func (h *TaskHandler) ListActive(c echo.Context) error {
	tasks, err := h.taskService.ListActive(c.Request().Context())
	return h.list(c, tasks, err)
}

// ListByUser godoc
// @Summary List tasks assigned to a user
// @Tags tasks
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {array} model.Task
// @Failure 400 {object} errors.ErrorResponse
// @Router /tasks/byuser/{userId} [get]
func (h *TaskHandler) ListByUser(c echo.Context) error {
	id, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	tasks, err := h.taskService.ListByUser(c.Request().Context(), id)
	return h.list(c, tasks, err)
}

// ListByDate godoc
// @Summary List tasks due on a date
// @Tags tasks
// @Produce json
// @Param date path string true "Date (yyyy-MM-dd)"
// @Success 200 {array} model.Task
// @Failure 400 {object} errors.ErrorResponse
// @Router /tasks/bydate/{date} [get]
func (h *TaskHandler) ListByDate(c echo.Context) error {
	day, ok := parseDate(c.Param("date"))
	if !ok {
		return badRequest("invalid date")
	}
	tasks, err := h.taskService.ListByDate(c.Request().Context(), day)
	return h.list(c, tasks, err)
}

// Search godoc
// @Summary Search tasks
// @Description Keyword matches title or description. Unknown sort combinations fall back to ascending due date.
// @Tags tasks
// @Produce json
// @Param keyword query string false "Substring of title or description"
// @Param sortBy query string false "title, duedate or assignee" default(duedate)
// @Param order query string false "asc or desc" default(asc)
// @Success 200 {array} model.Task
// @Router /tasks/search [get]
func (h *TaskHandler) Search(c echo.Context) error {
	tasks, err := h.taskService.Search(c.Request().Context(), service.SearchQuery{
		Keyword: c.QueryParam("keyword"),
		SortBy:  c.QueryParam("sortBy"),
		Order:   c.QueryParam("order"),
	})
	return h.list(c, tasks, err)
}
