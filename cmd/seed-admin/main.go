// seed-admin creates the first admin user of a site store. It does nothing
// once any user exists.
//
// Usage:
//   DB_DRIVER=sqlite DB_DSN=ims.db ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/ims_backend/config"
	"github.com/mmdatafocus/ims_backend/models"
)

func main() {
	settings := config.LoadSettings()
	username := flag.String("username", envOr("ADMIN_USERNAME", "admin"), "admin username")
	name := flag.String("name", envOr("ADMIN_NAME", "Site Admin"), "display name")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (or ADMIN_PASSWORD)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "password is required (-password or ADMIN_PASSWORD)")
		os.Exit(2)
	}

	ctx := context.Background()
	logger := config.NewLogger(settings.LogLevel)
	db, err := config.OpenDatabase(settings.DBDriver, settings.DBDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}
	store := models.NewStore(db, logger)

	count, err := store.CountUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to count users: %v\n", err)
		os.Exit(1)
	}
	if count > 0 {
		fmt.Printf("Users already exist (%d); nothing to do\n", count)
		return
	}

	user, err := store.CreateUser(ctx, &models.NewUser{
		Username: *username,
		Name:     *name,
		Password: *password,
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created admin user: username=%q id=%d\n", user.Username, user.ID)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
