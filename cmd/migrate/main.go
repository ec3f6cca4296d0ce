package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/learnbridge/tutoring-backend/internal/config"
	"github.com/learnbridge/tutoring-backend/internal/logger"
	"go.uber.org/zap"
)

const migrationsDirName = "migrations"

func main() {
	bootLog := logger.Default()

	cfg, err := config.LoadMigrationConfig()
	if err != nil {
		bootLog.Fatal("failed to load config", zap.Error(err))
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		bootLog.Fatal("failed to build logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()
	log = log.Named("migrate")

	command, err := parseCommand(os.Args[1:])
	if err != nil {
		log.Fatal("invalid command", zap.Error(err))
	}

	migrationsPath, err := findMigrationsDir(migrationSearchRoots())
	if err != nil {
		log.Fatal("migrations directory not found", zap.Error(err))
	}

	m, err := migrate.New("file://"+filepath.ToSlash(migrationsPath), cfg.DBUrl)
	if err != nil {
		log.Fatal("failed to open migrations", zap.String("path", migrationsPath), zap.Error(err))
	}
	m.Log = migrateLogger{log: log.Sugar(), verbose: cfg.IsDevelopment()}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	if err := run(m, command); err != nil {
		log.Error("migration failed", zap.String("command", command), zap.Error(err))
		logVersion(log, m)
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("migration finished", zap.String("command", command), zap.String("path", migrationsPath))
	logVersion(log, m)
}

func parseCommand(args []string) (string, error) {
	if len(args) == 0 {
		return "up", nil
	}
	switch command := strings.ToLower(strings.TrimSpace(args[0])); command {
	case "up", "down", "version":
		return command, nil
	default:
		return "", fmt.Errorf("unknown command %q, expected up, down or version", args[0])
	}
}

type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

func run(m migrator, command string) error {
	var err error
	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func logVersion(log *zap.Logger, m migrator) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("no migrations applied")
	case err != nil:
		log.Warn("failed to read migration version", zap.Error(err))
	case dirty:
		log.Warn("schema is dirty", zap.Uint("version", version))
	default:
		log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
}

// migrationSearchRoots lists the working directory and its parents, then
// the directories around the executable.
func migrationSearchRoots() []string {
	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		current := cwd
		for i := 0; i < 6; i++ {
			roots = append(roots, current)
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		roots = append(roots, exeDir, filepath.Join(exeDir, ".."), filepath.Join(exeDir, "..", ".."))
	}
	return roots
}

func findMigrationsDir(roots []string) (string, error) {
	for _, root := range roots {
		candidate := filepath.Join(root, migrationsDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("no %s directory under %s", migrationsDirName, strings.Join(roots, ", "))
}

// migrateLogger routes migrate's progress output through zap.
type migrateLogger struct {
	log     *zap.SugaredLogger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.verbose
}
