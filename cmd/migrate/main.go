// Command migrate applies or rolls back the embedded schema migrations.
//
//	migrate up            apply every pending migration
//	migrate down [n]      roll back n migrations (default 1)
//	migrate version       print the current version
//	migrate force <v>     mark version v as clean after a failed run
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/database"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	m, err := database.NewMigrator(cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("Migration failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, cmd string, args []string) error {
	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			n = v
		}
		if err := m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "force":
		if len(args) != 1 {
			return errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(v); err != nil {
			return err
		}
	case "version":
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Schema version", "version", version, "dirty", dirty)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down [n] | version | force <version>")
}
