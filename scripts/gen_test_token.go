package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/ledger"
)

func main() {
	tier := flag.String("tier", "free", "tier claim: free, pro or enterprise")
	email := flag.String("email", "test@docforge.dev", "email claim")
	userID := flag.String("user", "", "caller id (random when empty)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	if *userID == "" {
		*userID = uuid.New().String()
	}

	// seed the quota row so the usage endpoint has something to show
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ctx := context.Background()

		pool, err := ledger.Connect(ctx, dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		store := ledger.NewPostgresStore(pool, ledger.QuotaModeAtomic)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}

		quota, err := ledger.New(store).Quota(ctx, *userID)
		if err != nil {
			log.Fatalf("Failed to create quota record: %v", err)
		}

		fmt.Printf("Quota record ready (daily operations: %d)\n", quota.DailyOperations)
	}

	t := config.ParseTier(*tier)

	token, err := auth.GenerateJWT(*userID, *email, string(t))
	if err != nil {
		log.Fatalf("Failed to generate JWT: %v", err)
	}

	fmt.Printf("\nTest JWT for %s (%s tier):\n%s\n\n", *userID, t, token)
	fmt.Printf("Export this token for docctl:\nexport DOCFORGE_TOKEN=\"%s\"\n", token)
}
