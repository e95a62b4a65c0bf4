package pg

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/pressly/goose/v3"
)

const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate runs a goose command against the sql files in dir.
func Migrate(cfg Config, dir string, command string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("running migrations", "dir", dir, "command", command)
	switch command {
	case "", MigrateUp:
		return goose.Up(db, dir)
	case MigrateDown:
		return goose.Down(db, dir)
	case MigrateStatus:
		return goose.Status(db, dir)
	}
	return fmt.Errorf("unknown migration command %q", command)
}
