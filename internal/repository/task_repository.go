package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"usertasks/internal/model"
)

// TaskSort selects the ordering column for task listings.
type TaskSort string

const (
	SortByDueDate  TaskSort = "duedate"
	SortByTitle    TaskSort = "title"
	SortByAssignee TaskSort = "assignee"
)

// TaskFilter narrows a task listing. Zero values mean "no constraint";
// set fields combine with AND.
type TaskFilter struct {
	AssigneeID *uint
	// DueFrom is inclusive, DueBefore exclusive.
	DueFrom   *time.Time
	DueBefore *time.Time
	// Keyword matches a substring of the title or the description, ignoring case.
	Keyword string
	Sort    TaskSort
	Desc    bool
}

// TaskRepository defines task persistence operations.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id uint) (*model.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]model.Task, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository builds a GORM-backed repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Create inserts the task and loads its assignee.
func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Assignee").Create(task).Error; err != nil {
		return err
	}
	return r.loadAssignee(db, task)
}

// Update replaces every column of the task.
func (r *taskRepository) Update(ctx context.Context, task *model.Task) error {
	db := r.db.WithContext(ctx)
	task.Assignee = nil
	if err := db.Omit("Assignee").Save(task).Error; err != nil {
		return err
	}
	return r.loadAssignee(db, task)
}

func (r *taskRepository) Delete(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Delete(&model.Task{}, task.ID).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Preload("Assignee").First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns the tasks matching filter with their assignees preloaded.
func (r *taskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).Preload("Assignee")

	if filter.AssigneeID != nil {
		q = q.Where("tasks.assignee_id = ?", *filter.AssigneeID)
	}
	if filter.DueFrom != nil {
		q = q.Where("tasks.due_date >= ?", filter.DueFrom.UTC())
	}
	if filter.DueBefore != nil {
		q = q.Where("tasks.due_date < ?", filter.DueBefore.UTC())
	}
	if filter.Keyword != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Keyword)) + "%"
		q = q.Where("(LOWER(tasks.title) LIKE ? ESCAPE '!' OR LOWER(tasks.description) LIKE ? ESCAPE '!')", pattern, pattern)
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	switch filter.Sort {
	case SortByTitle:
		q = q.Order("tasks.title " + dir)
	case SortByAssignee:
		q = q.Joins("LEFT JOIN users ON users.id = tasks.assignee_id").
			Order("users.username " + dir)
	default:
		q = q.Order("tasks.due_date " + dir)
	}
	q = q.Order("tasks.id ASC")

	var tasks []model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// An orphaned task (assignee deleted) keeps a nil Assignee.
func (r *taskRepository) loadAssignee(db *gorm.DB, task *model.Task) error {
	var user model.User
	err := db.Where("id = ?", task.AssigneeID).Limit(1).Find(&user).Error
	if err != nil {
		return err
	}
	if user.ID != 0 {
		task.Assignee = &user
	}
	return nil
}

// '!' is the LIKE escape character on every supported driver.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
