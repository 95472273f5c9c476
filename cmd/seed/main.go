package main

import (
	"context"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/pkg/config"
	"github.com/noah-isme/taskflow-api/pkg/database"
)

// Seeds the demo account and a handful of sample tasks. Running it twice is
// harmless: the duplicate email simply skips re-creation.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	hash, err := bcrypt.GenerateFromPassword([]byte("Demo123!"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Name:         "Demo User",
		Email:        "demo@taskflow.dev",
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			log.Println("demo user already exists, skipping")
			return
		}
		log.Fatalf("failed to create demo user: %v", err)
	}

	describe := func(s string) *string { return &s }
	due := time.Now().AddDate(0, 0, 7)

	samples := []models.Task{
		{Title: "Set up the project board", Description: describe("Create columns for todo, in progress and done"), Status: models.StatusCompleted, Priority: models.PriorityMedium},
		{Title: "Write the quarterly report", Description: describe("Draft due by end of week"), Status: models.StatusInProgress, Priority: models.PriorityHigh, DueDate: &due},
		{Title: "Review open pull requests", Status: models.StatusTodo, Priority: models.PriorityMedium},
		{Title: "Plan the team offsite", Status: models.StatusTodo, Priority: models.PriorityLow},
	}

	for i := range samples {
		samples[i].UserID = user.ID
		if err := taskRepo.Create(ctx, &samples[i]); err != nil {
			log.Fatalf("failed to create sample task: %v", err)
		}
	}

	log.Printf("seeded demo user %s with %d tasks", user.Email, len(samples))
}
