package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lizzy/internal/config"
	"lizzy/internal/db"
	"lizzy/internal/engine"
	"lizzy/internal/events"
	"lizzy/internal/llm"
	"lizzy/internal/logger"
	"lizzy/internal/migrate"
	"lizzy/internal/repo"
)

// API key variables, checked in order.
var apiKeyEnv = []string{"LIZZY_OPENAI_API_KEY", "OPENAI_API_KEY"}

type Options struct {
	Workspace string
	Project   string
	// LogLevel overrides logging.level from lizzy.yml.
	LogLevel string
	// Create allows opening a project whose database does not exist yet.
	Create bool
}

// Session is one opened project: database, config, logger and engine.
type Session struct {
	Workspace string
	Project   string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Log       *zap.Logger
	Engine    engine.Engine
}

// LoadEnv reads <workspace>/.env without overriding variables already set.
func LoadEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ResolveProject picks the active project. It prefers the override, then the
// only project in the workspace.
func ResolveProject(workspace, override string) (string, error) {
	if p := strings.TrimSpace(override); p != "" {
		return db.SanitizeProjectName(p)
	}
	names, err := db.ListProjects(workspace)
	if err != nil {
		return "", err
	}
	switch len(names) {
	case 0:
		return "", errors.New("no projects in workspace; run lizzy project init <name>")
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("several projects in workspace (%s); use --project", strings.Join(names, ", "))
	}
}

// Open resolves the project, loads config and .env, opens and migrates the
// database and wires the engine. The generator is attached by EnableGenerator.
func Open(ctx context.Context, opts Options) (*Session, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	if err := LoadEnv(workspace); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	project, err := ResolveProject(workspace, opts.Project)
	if err != nil {
		return nil, err
	}
	if !opts.Create && !db.Exists(workspace, project) {
		return nil, fmt.Errorf("project %q not found; run lizzy project init %s", project, project)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: cfg.Logging.Encoding})
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("project", project))

	conn, err := db.Open(db.Config{Workspace: workspace, Project: project})
	if err != nil {
		return nil, err
	}
	version, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(workspace, project), err)
	}
	log.Debug("database ready", zap.String("path", db.Path(workspace, project)), zap.Int("schema_version", version))

	e := engine.New(conn, cfg, workspace, project)
	e.Log = log
	if len(cfg.Webhooks) > 0 {
		e.Notifier = events.NewNotifier(e.Repo, project, cfg.Webhooks, log.Named("webhooks"))
	}
	return &Session{
		Workspace: workspace,
		Project:   project,
		DB:        conn,
		Repo:      e.Repo,
		Config:    cfg,
		Log:       log,
		Engine:    e,
	}, nil
}

// APIKey returns the first non-empty generation API key from the environment.
func APIKey() string {
	for _, k := range apiKeyEnv {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// EnableGenerator builds the configured backend and attaches it to the engine.
func (s *Session) EnableGenerator() error {
	gen, err := llm.New(llm.OptionsFromConfig(s.Config.Generation, APIKey(), s.Log.Named("llm")))
	if err != nil {
		return err
	}
	s.Engine.Generator = gen
	return nil
}

func (s *Session) Close() error {
	_ = s.Log.Sync()
	return s.DB.Close()
}
