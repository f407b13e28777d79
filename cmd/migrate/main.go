package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/falachabt/bacblanc-sub000/internal/config"
)

func main() {
	var dir string
	flag.StringVar(&dir, "path", "migrations", "Directory containing migration files")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Open migrations: %v", err)
	}

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(m *migrate.Migrate, args []string) error {
	if len(args) < 1 {
		usage()
		return nil
	}

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("up: %w", err)
		}
		fmt.Println("Schema is up to date")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("down: %w", err)
		}
		fmt.Println("Schema rolled back")
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a count (negative rolls back)")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		if err := m.Steps(n); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("steps: %w", err)
		}
		fmt.Printf("Applied %d step(s)\n", n)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force requires a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		fmt.Printf("Forced version to %d\n", v)
	default:
		usage()
	}
	return nil
}

func usage() {
	fmt.Println("Usage: migrate [-path dir] <command>")
	fmt.Println("Commands: up, down, steps <n>, version, force <version>")
}
