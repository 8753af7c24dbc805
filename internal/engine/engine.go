package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"lizzy/internal/config"
	"lizzy/internal/events"
	"lizzy/internal/llm"
	"lizzy/internal/repo"
)

const defaultActor = "lizzy"

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Generator llm.Generator
	Notifier  *events.Notifier
	Log       *zap.Logger
	Workspace string
	Project   string
	Actor     string
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config, workspace, project string) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{},
		Config:    cfg,
		Log:       zap.NewNop(),
		Workspace: workspace,
		Project:   project,
		Actor:     defaultActor,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) actor() string {
	if e.Actor != "" {
		return e.Actor
	}
	return defaultActor
}

func (e Engine) writerConfig() WriterConfig {
	return NewWriterConfig(e.Config.Writer)
}

func (e Engine) emit(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, e.DB, evtType, e.Project, entityKind, entityID, e.actor(), payload)
}

// WriterConfig is the immutable per-run view of the writer settings.
type WriterConfig struct {
	Style             string
	Tone              string
	Format            string
	EasterEgg         string
	MinWords          int
	MaxWords          int
	RequireBrainstorm bool
	BrainstormPrefix  string
	PrevSceneMaxChars int
	OutlineMaxChars   int
}

const (
	DefaultPrevSceneMaxChars = 2500
	DefaultOutlineMaxChars   = 1200
)

// NewWriterConfig copies c, filling zero values with defaults.
func NewWriterConfig(c config.WriterConfig) WriterConfig {
	wc := WriterConfig{
		Style:             c.Style,
		Tone:              c.Tone,
		Format:            c.Format,
		EasterEgg:         c.EasterEgg,
		MinWords:          c.MinWords,
		MaxWords:          c.MaxWords,
		RequireBrainstorm: c.RequireBrainstorm,
		BrainstormPrefix:  c.BrainstormPrefix,
		PrevSceneMaxChars: c.PrevSceneMaxChars,
		OutlineMaxChars:   c.OutlineMaxChars,
	}
	if wc.Style == "" {
		wc.Style = "cinematic"
	}
	if wc.Tone == "" {
		wc.Tone = "witty and heartfelt"
	}
	if wc.Format == "" {
		wc.Format = config.FormatProse
	}
	if wc.MinWords == 0 && wc.MaxWords == 0 {
		wc.MinWords, wc.MaxWords = 700, 900
	}
	if wc.BrainstormPrefix == "" {
		wc.BrainstormPrefix = repo.DefaultBrainstormPrefix
	}
	if wc.PrevSceneMaxChars <= 0 {
		wc.PrevSceneMaxChars = DefaultPrevSceneMaxChars
	}
	if wc.OutlineMaxChars <= 0 {
		wc.OutlineMaxChars = DefaultOutlineMaxChars
	}
	return wc
}

func (wc WriterConfig) Screenplay() bool {
	return wc.Format == config.FormatScreenplay
}
