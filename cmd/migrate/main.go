package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opentrusty/pkibridge/internal/config"
	"github.com/opentrusty/pkibridge/internal/store/postgres"
)

// Usage: migrate [connection-string]
// Without an argument the DB_* environment variables are used.
func main() {
	ctx := context.Background()

	connStr, err := connectionString(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load database configuration: %v", err)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping: %v", err)
	}

	fmt.Println("✓ Connected to database")

	migrations, err := postgres.Migrations()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	for _, m := range migrations {
		fmt.Printf("Running %s...\n", m.Name)

		if _, err := db.ExecContext(ctx, m.Script); err != nil {
			log.Fatalf("Failed to execute %s: %v", m.Name, err)
		}

		fmt.Printf("✓ %s completed\n", m.Name)
	}

	fmt.Printf("\n✓ %d migrations applied\n", len(migrations))
}

func connectionString(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	db, err := config.LoadDatabase()
	if err != nil {
		return "", err
	}
	return db.DSN(), nil
}
