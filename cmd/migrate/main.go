package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"owly-api/internal/database"
	"owly-api/internal/shared"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Get DSN from environment
	DSN, err := shared.SafeEnv("DSN")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: DSN environment variable is required: %v\n", err)
		os.Exit(1)
	}

	// Either a single file or every file in the migrations dir
	var files []string
	if len(os.Args) > 1 {
		files = os.Args[1:]
	} else {
		files, err = database.MigrationFiles("migrations")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing migrations: %v\n", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no migration files found")
		os.Exit(1)
	}

	db, err := sql.Open("mysql", DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for _, file := range files {
		n, err := database.ApplyMigration(ctx, db, file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %s (%d statements)\n", file, n)
	}

	fmt.Println("Migration completed successfully!")
}
