package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Skotchmaster/incident_desk/internal/config"
	pkgdb "github.com/Skotchmaster/incident_desk/internal/db"
	"github.com/Skotchmaster/incident_desk/internal/hash"
	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/repo"
)

type account struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

var demoAccounts = []account{
	{Name: "Regular User", Email: "user@test.com", Password: "user123", Role: models.RoleUser},
	{Name: "Admin User", Email: "admin@test.com", Password: "admin123", Role: models.RoleAdmin},
	{Name: "Super Admin", Email: "superadmin@test.com", Password: "super123", Role: models.RoleSuperAdmin},
}

// seedAccounts creates the accounts that do not exist yet and leaves the
// others untouched.
func seedAccounts(ctx context.Context, r *repo.GormRepo, l *slog.Logger, accounts []account) (int, error) {
	created := 0
	for _, a := range accounts {
		pw, err := hash.HashPassword(a.Password)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", a.Email, err)
		}

		u := &models.User{Name: a.Name, Email: a.Email, PasswordHash: pw, Role: a.Role}
		if err := r.CreateUserIfNotExists(ctx, u); err != nil {
			if errors.Is(err, repo.ErrUserAlreadyExist) {
				l.Info("seed_user_exists", "email", a.Email)
				continue
			}
			return created, fmt.Errorf("create %s: %w", a.Email, err)
		}
		l.Info("seed_user_created", "email", a.Email, "role", a.Role)
		created++
	}
	return created, nil
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName, "cmd", "seed")

	if err := cfg.RequireDatabase(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := pkgdb.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := pkgdb.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	created, err := seedAccounts(ctx, &repo.GormRepo{DB: db}, logger, demoAccounts)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	logger.Info("seed_done", "created", created, "total", len(demoAccounts))
}
