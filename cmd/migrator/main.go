package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"modelcards/api/internal/catalog"
	"modelcards/api/internal/config"
	"modelcards/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		exit(err)
	}
	var (
		databaseURL   string
		migrationsDir string
		down          int
		status        bool
		seed          string
	)
	flag.StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "postgres connection URL")
	flag.StringVar(&migrationsDir, "migrations-path", cfg.MigrationsDir, "directory holding the migration files")
	flag.IntVar(&down, "down", 0, "roll back this many migrations instead of applying")
	flag.BoolVar(&status, "status", false, "print the applied version and exit")
	flag.StringVar(&seed, "seed", "", "JSON file of products to upsert after applying migrations")
	flag.Parse()

	switch {
	case status:
		version, dirty, err := store.MigrationVersion(databaseURL, migrationsDir)
		if err != nil {
			exit(err)
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
	case down > 0:
		if err := store.RollbackMigrations(databaseURL, migrationsDir, down); err != nil {
			exit(err)
		}
		fmt.Printf("rolled back %d migration(s)\n", down)
	default:
		if err := store.ApplyMigrations(databaseURL, migrationsDir); err != nil {
			exit(err)
		}
		fmt.Println("migrations applied")
		if seed != "" {
			n, err := seedProducts(databaseURL, seed)
			if err != nil {
				exit(err)
			}
			fmt.Printf("upserted %d product(s)\n", n)
		}
	}
}

func seedProducts(databaseURL, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	db, err := store.Open(ctx, databaseURL)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return catalog.Import(ctx, f, store.NewPostgresStore(db))
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
