// seed-admin creates the bootstrap admin user for the CRM console.
//
// Usage (from backend directory):
//   FIRESTORE_PROJECT_ID=... SEED_ADMIN_EMAIL=... SEED_ADMIN_PASSWORD=... go run ./cmd/seed-admin
//
// Re-running against an existing user re-asserts the admin role and active
// flag but leaves the password alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
)

func main() {
	ctx := context.Background()

	email := strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
		os.Exit(1)
	}
	name := strings.TrimSpace(os.Getenv("SEED_ADMIN_NAME"))
	if name == "" {
		name = "CRM Admin"
	}
	platform := strings.TrimSpace(os.Getenv("SEED_ADMIN_PLATFORM"))
	if platform == "" {
		platform = string(models.PlatformACN)
	}

	config.ConnectFirestoreWithRetry()
	if config.GetFirestore() == nil {
		fmt.Fprintln(os.Stderr, "firestore not initialized. Set FIRESTORE_PROJECT_ID / FIRESTORE_CREDENTIALS_JSON.")
		os.Exit(1)
	}

	users := models.UserStore{}
	existing, err := users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	if existing == nil {
		if _, err := users.Create(ctx, models.NewUser{
			Email:    email,
			Name:     name,
			Role:     string(models.RoleAdmin),
			Platform: platform,
			Password: password,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: email=%q\n", email)
		return
	}

	if _, err := users.SetRole(ctx, email, models.RoleAdmin); err != nil {
		fmt.Fprintf(os.Stderr, "failed to assert admin role: %v\n", err)
		os.Exit(1)
	}
	if err := users.SetActive(ctx, email, true); err != nil {
		fmt.Fprintf(os.Stderr, "failed to activate admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: email=%q (role=admin, active; password unchanged)\n", email)
}
