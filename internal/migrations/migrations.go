package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var FS embed.FS

const dir = "sql"

// Commands supported by Run
const (
	CommandUp     = "up"
	CommandDown   = "down"
	CommandStatus = "status"
)

func init() {
	goose.SetBaseFS(FS)
}

// Open opens a lib/pq connection for migrations
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	return db, nil
}

// Run applies command against db using the embedded postgres migrations
func Run(db *sql.DB, command string, logger *zap.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	logger.Info("running migrations", zap.String("command", command))

	var err error
	switch command {
	case CommandUp:
		err = goose.Up(db, dir)
	case CommandDown:
		err = goose.Down(db, dir)
	case CommandStatus:
		err = goose.Status(db, dir)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down or status)", command)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	logger.Info("migrations finished", zap.String("command", command))
	return nil
}

// Versions lists the embedded migration versions in order
func Versions() ([]int64, error) {
	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, err
	}

	versions := make([]int64, 0, len(migrations))
	for _, m := range migrations {
		versions = append(versions, m.Version)
	}
	return versions, nil
}
