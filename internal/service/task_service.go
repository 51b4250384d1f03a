package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "usertasks/internal/errors"
	"usertasks/internal/model"
	"usertasks/internal/repository"
)

// TaskInput carries every writable task field. Updates replace all of them.
type TaskInput struct {
	Title       string
	Description string
	AssigneeID  uint
	DueDate     time.Time
}

// SearchQuery describes a keyword search. Empty fields use the defaults
// (no keyword, due date, ascending).
type SearchQuery struct {
	Keyword string
	SortBy  string
	Order   string
}

// TaskService exposes task operations.
type TaskService interface {
	List(ctx context.Context) ([]model.Task, error)
	GetByID(ctx context.Context, id uint) (*model.Task, error)
	Create(ctx context.Context, in TaskInput) (*model.Task, error)
	Update(ctx context.Context, id uint, in TaskInput) error
	Delete(ctx context.Context, id uint) error
	ListExpired(ctx context.Context) ([]model.Task, error)
	ListActive(ctx context.Context) ([]model.Task, error)
	ListByUser(ctx context.Context, assigneeID uint) ([]model.Task, error)
	ListByDate(ctx context.Context, day time.Time) ([]model.Task, error)
	Search(ctx context.Context, q SearchQuery) ([]model.Task, error)
}

type taskService struct {
	store repository.Store
	now   func() time.Time
}

// NewTaskService creates a new task service.
func NewTaskService(store repository.Store) TaskService {
	return &taskService{store: store, now: time.Now}
}

func (s *taskService) List(ctx context.Context) ([]model.Task, error) {
	return s.store.Tasks().List(ctx, repository.TaskFilter{})
}

func (s *taskService) GetByID(ctx context.Context, id uint) (*model.Task, error) {
	return findTask(ctx, s.store.Tasks(), id)
}

// Create checks the assignee and inserts the task in one transaction.
func (s *taskService) Create(ctx context.Context, in TaskInput) (*model.Task, error) {
	if err := validateTaskInput(&in); err != nil {
		return nil, err
	}

	task := &model.Task{
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		DueDate:     in.DueDate,
	}
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := ensureAssignee(ctx, tx.Users(), in.AssigneeID); err != nil {
			return err
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Update replaces every field of the task. The assignee is validated the same
// way as on create.
func (s *taskService) Update(ctx context.Context, id uint, in TaskInput) error {
	if err := validateTaskInput(&in); err != nil {
		return err
	}

	return s.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		task, err := findTask(ctx, tx.Tasks(), id)
		if err != nil {
			return err
		}
		if err := ensureAssignee(ctx, tx.Users(), in.AssigneeID); err != nil {
			return err
		}

		task.Title = in.Title
		task.Description = in.Description
		task.AssigneeID = in.AssigneeID
		task.DueDate = in.DueDate
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		return nil
	})
}

func (s *taskService) Delete(ctx context.Context, id uint) error {
	tasks := s.store.Tasks()
	task, err := findTask(ctx, tasks, id)
	if err != nil {
		return err
	}
	if err := tasks.Delete(ctx, task); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListExpired returns tasks due strictly before now.
func (s *taskService) ListExpired(ctx context.Context) ([]model.Task, error) {
	now := s.now()
	return s.store.Tasks().List(ctx, repository.TaskFilter{DueBefore: &now})
}

// ListActive returns tasks due now or later.
func (s *taskService) ListActive(ctx context.Context) ([]model.Task, error) {
	now := s.now()
	return s.store.Tasks().List(ctx, repository.TaskFilter{DueFrom: &now})
}

func (s *taskService) ListByUser(ctx context.Context, assigneeID uint) ([]model.Task, error) {
	return s.store.Tasks().List(ctx, repository.TaskFilter{AssigneeID: &assigneeID})
}

// ListByDate returns tasks due on the calendar day of day, whatever the time.
func (s *taskService) ListByDate(ctx context.Context, day time.Time) ([]model.Task, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	return s.store.Tasks().List(ctx, repository.TaskFilter{DueFrom: &from, DueBefore: &to})
}

func (s *taskService) Search(ctx context.Context, q SearchQuery) ([]model.Task, error) {
	sort, desc := resolveSort(q.SortBy, q.Order)
	return s.store.Tasks().List(ctx, repository.TaskFilter{
		Keyword: q.Keyword,
		Sort:    sort,
		Desc:    desc,
	})
}

// resolveSort falls back to ascending due date for any unknown combination.
func resolveSort(sortBy, order string) (repository.TaskSort, bool) {
	if sortBy == "" {
		sortBy = string(repository.SortByDueDate)
	}
	if order == "" {
		order = "asc"
	}

	var desc bool
	switch strings.ToLower(order) {
	case "asc":
	case "desc":
		desc = true
	default:
		return repository.SortByDueDate, false
	}

	switch sort := repository.TaskSort(strings.ToLower(sortBy)); sort {
	case repository.SortByTitle, repository.SortByDueDate, repository.SortByAssignee:
		return sort, desc
	default:
		return repository.SortByDueDate, false
	}
}

func validateTaskInput(in *TaskInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperrors.ErrMissingTitle
	}
	if in.AssigneeID == 0 {
		return apperrors.ErrAssigneeNotFound
	}
	if in.DueDate.IsZero() {
		return apperrors.Validationf("dueDate is required")
	}
	in.DueDate = in.DueDate.UTC()
	return nil
}

func ensureAssignee(ctx context.Context, users repository.UserRepository, id uint) error {
	if _, err := users.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrAssigneeNotFound
		}
		return fmt.Errorf("find assignee: %w", err)
	}
	return nil
}

func findTask(ctx context.Context, repo repository.TaskRepository, id uint) (*model.Task, error) {
	task, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return task, nil
}
