package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const projectsDir = "projects"

type Config struct {
	Workspace string
	Project   string
}

// ProjectDir returns the directory holding a project's database and exports.
func ProjectDir(workspace, project string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, projectsDir, project)
}

func dbPath(workspace, project string) string {
	return filepath.Join(ProjectDir(workspace, project), project+".sqlite")
}

// EnsureWorkspace creates the projects directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, projectsDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the project's SQLite database with foreign keys on, creating the
// project directory when needed.
func Open(cfg Config) (*sql.DB, error) {
	name, err := SanitizeProjectName(cfg.Project)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(ProjectDir(cfg.Workspace, name), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace, name))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer, sequential access
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Exists reports whether the project's database file is present.
func Exists(workspace, project string) bool {
	_, err := os.Stat(dbPath(workspace, project))
	return err == nil
}

// Path returns the db path for a project in the workspace.
func Path(workspace, project string) string {
	return dbPath(workspace, project)
}

// ListProjects returns the project directories that contain a database.
func ListProjects(workspace string) ([]string, error) {
	if workspace == "" {
		workspace = "."
	}
	entries, err := os.ReadDir(filepath.Join(workspace, projectsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && Exists(workspace, e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// SanitizeProjectName keeps letters, digits, '.', '_', '-' and turns spaces into underscores.
func SanitizeProjectName(name string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	return out, nil
}
