package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"scorelink/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "./scorelink.db", "Path to the database file")
	status := flag.Bool("status", false, "Print migration status without applying anything")
	flag.Parse()

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *status {
		printStatus(ctx, db)
		return
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	if len(applied) == 0 {
		fmt.Println("Database schema is up to date")
		return
	}
	for _, v := range applied {
		fmt.Printf("Applied migration %d\n", v)
	}
	fmt.Println("Database schema updated. You can now restart scorelink.")
}

func printStatus(ctx context.Context, db *sql.DB) {
	statuses, err := migrations.Status(ctx, db)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	for _, s := range statuses {
		state := "pending"
		if s.Applied && s.AppliedAt != nil {
			state = "applied " + s.AppliedAt.Format(time.RFC3339)
		} else if s.Applied {
			state = "applied"
		}
		fmt.Printf("%4d  %-32s %s\n", s.Version, s.Name, state)
	}
}
