package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"usertasks/internal/auth"
	"usertasks/internal/config"
	"usertasks/internal/db"
	apperrors "usertasks/internal/errors"
	"usertasks/internal/repository"
	"usertasks/internal/service"
)

// Fixture is the seed file layout. Tasks reference assignees by email.
type Fixture struct {
	Users []SeedUser `json:"users"`
	Tasks []SeedTask `json:"tasks"`
}

// SeedUser is a user to create when its email is not yet taken.
type SeedUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SeedTask is a task assigned to the user owning AssigneeEmail.
type SeedTask struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	AssigneeEmail string    `json:"assigneeEmail"`
	DueDate       time.Time `json:"dueDate"`
}

func main() {
	file := flag.String("file", "", "JSON fixture with users and tasks (built-in demo data when empty)")
	flag.Parse()

	log.Println("Starting seed script...")

	cfg := config.Load()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DBDSN, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	fixture := demoFixture(time.Now())
	if *file != "" {
		log.Printf("Loading fixture from: %s", *file)
		if fixture, err = loadFixture(*file); err != nil {
			log.Fatalf("Failed to load fixture: %v", err)
		}
	}

	store := repository.NewStore(gormDB)
	users := service.NewUserService(store, auth.NewPasswordHasher(cfg.BcryptCost))
	tasks := service.NewTaskService(store)

	created, skipped, taskCount, err := seed(context.Background(), store, users, tasks, fixture)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}

	log.Printf("Seed completed successfully!")
	log.Printf("  - New users created: %d", created)
	log.Printf("  - Existing users skipped: %d", skipped)
	log.Printf("  - Tasks created: %d", taskCount)
}

func loadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// seed creates the fixture's users, skipping emails that already exist, and
// then its tasks. Tasks whose assignee email is unknown, or that already
// exist with the same title, assignee and due date, are skipped.
func seed(
	ctx context.Context,
	store repository.Store,
	users service.UserService,
	tasks service.TaskService,
	f Fixture,
) (created, skipped, taskCount int, err error) {
	for _, u := range f.Users {
		_, err := users.Create(ctx, service.UserInput{Username: u.Username, Email: u.Email, Password: u.Password})
		switch {
		case errors.Is(err, apperrors.ErrEmailTaken):
			log.Printf("Skipping existing user: %s", u.Email)
			skipped++
		case err != nil:
			return created, skipped, taskCount, fmt.Errorf("create user %s: %w", u.Email, err)
		default:
			created++
		}
	}

	for _, t := range f.Tasks {
		assignee, err := store.Users().FindByEmail(ctx, t.AssigneeEmail)
		if err != nil {
			log.Printf("Skipping task %q: assignee %s not found", t.Title, t.AssigneeEmail)
			continue
		}
		exists, err := taskExists(ctx, tasks, assignee.ID, t)
		if err != nil {
			return created, skipped, taskCount, fmt.Errorf("check task %q: %w", t.Title, err)
		}
		if exists {
			log.Printf("Skipping existing task: %q", t.Title)
			continue
		}
		if _, err := tasks.Create(ctx, service.TaskInput{
			Title:       t.Title,
			Description: t.Description,
			AssigneeID:  assignee.ID,
			DueDate:     t.DueDate,
		}); err != nil {
			return created, skipped, taskCount, fmt.Errorf("create task %q: %w", t.Title, err)
		}
		taskCount++
	}

	return created, skipped, taskCount, nil
}

func taskExists(ctx context.Context, tasks service.TaskService, assigneeID uint, t SeedTask) (bool, error) {
	existing, err := tasks.ListByUser(ctx, assigneeID)
	if err != nil {
		return false, err
	}
	for _, task := range existing {
		if task.Title == strings.TrimSpace(t.Title) && task.DueDate.Equal(t.DueDate) {
			return true, nil
		}
	}
	return false, nil
}

// demoFixture returns a small data set with one expired task per user.
func demoFixture(now time.Time) Fixture {
	day := now.UTC().Truncate(24 * time.Hour)
	return Fixture{
		Users: []SeedUser{
			{Username: "alice", Email: "alice@example.com", Password: "password"},
			{Username: "bob", Email: "bob@example.com", Password: "password"},
		},
		Tasks: []SeedTask{
			{Title: "Prepare sprint review", Description: "Collect demo notes", AssigneeEmail: "alice@example.com", DueDate: day.AddDate(0, 0, 3)},
			{Title: "Renew certificates", Description: "Staging and production", AssigneeEmail: "alice@example.com", DueDate: day.AddDate(0, 0, -2)},
			{Title: "Update onboarding guide", AssigneeEmail: "bob@example.com", DueDate: day.AddDate(0, 0, 7)},
			{Title: "File expense report", Description: "Conference travel", AssigneeEmail: "bob@example.com", DueDate: day.AddDate(0, 0, -1)},
		},
	}
}
