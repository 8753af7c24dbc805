package server

import (
	"encoding/json"

	"lizzy/internal/config"
	"lizzy/internal/domain"
	"lizzy/internal/repo"
)

// Request payloads

type WriteRequest struct {
	// Scenes restricts the run, each as "act:scene". Empty writes the whole outline.
	Scenes     []string `json:"scenes,omitempty"`
	SkipExport bool     `json:"skip_export,omitempty"`
	ExportDir  string   `json:"export_dir,omitempty"`
}

type ExportRequest struct {
	Dir string `json:"dir,omitempty"`
}

// SceneRequest is an outline scene body; act and scene come from the path.
type SceneRequest struct {
	Title             string `json:"title,omitempty"`
	Location          string `json:"location,omitempty"`
	TimeOfDay         string `json:"time_of_day,omitempty"`
	CharactersPresent string `json:"characters_present,omitempty"`
	Purpose           string `json:"purpose,omitempty"`
	KeyEvents         string `json:"key_events,omitempty"`
	EmotionalBeats    string `json:"emotional_beats,omitempty"`
	DialogueNotes     string `json:"dialogue_notes,omitempty"`
	Beat              string `json:"beat,omitempty"`
	Direction         string `json:"direction,omitempty"`
	PlotThreads       string `json:"plot_threads,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

func (r SceneRequest) outline(key domain.SceneKey) domain.SceneOutline {
	return domain.SceneOutline{
		Act: key.Act, Scene: key.Scene,
		Title: r.Title, Location: r.Location, TimeOfDay: r.TimeOfDay,
		CharactersPresent: r.CharactersPresent, Purpose: r.Purpose, KeyEvents: r.KeyEvents,
		EmotionalBeats: r.EmotionalBeats, DialogueNotes: r.DialogueNotes, Beat: r.Beat,
		Direction: r.Direction, PlotThreads: r.PlotThreads, Notes: r.Notes,
	}
}

// Response payloads

type ProjectResponse struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
	Counts   repo.Counts       `json:"counts"`
	Writer   writerSection     `json:"writer"`
	Model    modelSection      `json:"generation"`
}

type writerSection struct {
	Style             string `json:"style"`
	Tone              string `json:"tone"`
	Format            string `json:"format" enum:"prose,screenplay"`
	MinWords          int    `json:"min_words"`
	MaxWords          int    `json:"max_words"`
	RequireBrainstorm bool   `json:"require_brainstorm"`
	BrainstormPrefix  string `json:"brainstorm_prefix"`
}

type modelSection struct {
	Provider string `json:"provider" enum:"openai,ollama"`
	Model    string `json:"model"`
}

type CharactersResponse struct {
	Items []domain.Character `json:"items"`
}

type OutlineResponse struct {
	Items []domain.SceneOutline `json:"items"`
}

type DraftsResponse struct {
	Items []domain.SceneDraft `json:"items"`
}

type FinalsResponse struct {
	Items []domain.FinalizedScene `json:"items"`
}

type RunTablesResponse struct {
	Items []RunTableResponse `json:"items"`
}

type RunTableResponse struct {
	Name    string `json:"name" example:"write_runs_v3"`
	Version int    `json:"version"`
}

type RunRecordsResponse struct {
	Table string                  `json:"table"`
	Items []domain.WriteRunRecord `json:"items"`
}

type PromptResponse struct {
	Act    int    `json:"act"`
	Scene  int    `json:"scene"`
	Prompt string `json:"prompt"`
	Tokens int    `json:"tokens"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(name string, meta map[string]string, counts repo.Counts, cfg *config.Config) ProjectResponse {
	if meta == nil {
		meta = map[string]string{}
	}
	return ProjectResponse{
		Name:     name,
		Metadata: meta,
		Counts:   counts,
		Writer: writerSection{
			Style:             cfg.Writer.Style,
			Tone:              cfg.Writer.Tone,
			Format:            cfg.Writer.Format,
			MinWords:          cfg.Writer.MinWords,
			MaxWords:          cfg.Writer.MaxWords,
			RequireBrainstorm: cfg.Writer.RequireBrainstorm,
			BrainstormPrefix:  cfg.Writer.BrainstormPrefix,
		},
		Model: modelSection{
			Provider: cfg.Generation.Provider,
			Model:    cfg.Generation.Model,
		},
	}
}

func runTables(items []repo.VersionedTable) []RunTableResponse {
	out := make([]RunTableResponse, 0, len(items))
	// newest first
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, RunTableResponse{Name: items[i].Name, Version: items[i].Version})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
