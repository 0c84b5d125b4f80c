package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/database"
	"github.com/safar/warehouse-ops/internal/logging"
	"go.uber.org/zap"
)

const migrationDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: go run scripts/run_migrations.go [up|down]")
		os.Exit(2)
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		fmt.Fprintln(os.Stderr, "Direction must be 'up' or 'down'")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	files, err := migrationFiles(direction)
	if err != nil {
		logger.Fatal("list migrations", zap.Error(err))
	}

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(migrationDir, name))
		if err != nil {
			logger.Fatal("read migration", zap.String("file", name), zap.Error(err))
		}

		logger.Info("running migration", zap.String("file", name))
		err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, string(content))
			return err
		})
		if err != nil {
			logger.Fatal("execute migration", zap.String("file", name), zap.Error(err))
		}
	}

	logger.Info("migrations applied", zap.Int("count", len(files)), zap.String("direction", direction))
}

// migrationFiles lists the files for direction in the order they must run.
func migrationFiles(direction string) ([]string, error) {
	entries, err := os.ReadDir(migrationDir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "."+direction+".sql") {
			files = append(files, e.Name())
		}
	}

	slices.Sort(files)
	if direction == "down" {
		slices.Reverse(files)
	}
	return files, nil
}
