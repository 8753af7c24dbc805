// Package intake feeds the project store from YAML files: story metadata,
// characters, outline scenes and brainstorm entries.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lizzy/internal/domain"
	"lizzy/internal/events"
	"lizzy/internal/repo"
)

// Version is recorded as lizzy_version metadata on project init.
const Version = "0.3.0"

const actor = "lizzy"

// Story is the intake file layout.
type Story struct {
	Metadata   map[string]string     `yaml:"metadata"`
	Characters []domain.Character    `yaml:"characters"`
	Outline    []domain.SceneOutline `yaml:"outline"`
}

// Brainstorm is the brainstorm import file layout.
type Brainstorm struct {
	Entries []domain.BrainstormEntry `yaml:"entries"`
}

type Result struct {
	Metadata   int    `json:"metadata"`
	Characters int    `json:"characters"`
	Scenes     int    `json:"scenes"`
	Table      string `json:"table,omitempty"`
	Entries    int    `json:"entries,omitempty"`
}

// Importer writes intake data through the repo and records an event per import.
type Importer struct {
	Repo    repo.Repo
	Events  events.Writer
	Project string
	Now     func() time.Time
}

func (im Importer) now() time.Time {
	if im.Now != nil {
		return im.Now()
	}
	return time.Now()
}

func (im Importer) emit(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) error {
	w := im.Events
	if w.Now == nil {
		w.Now = im.now
	}
	return w.Append(ctx, im.Repo.DB, evtType, im.Project, entityKind, entityID, actor, payload)
}

// ParseStory decodes and validates an intake document.
func ParseStory(data []byte) (Story, error) {
	var s Story
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Story{}, fmt.Errorf("invalid intake yaml: %w", err)
	}
	seen := map[string]bool{}
	for i, c := range s.Characters {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return Story{}, fmt.Errorf("characters[%d]: name is required", i)
		}
		if seen[name] {
			return Story{}, fmt.Errorf("characters[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	keys := map[domain.SceneKey]bool{}
	for i, sc := range s.Outline {
		if sc.Act <= 0 || sc.Scene <= 0 {
			return Story{}, fmt.Errorf("outline[%d]: act and scene must be positive", i)
		}
		if keys[sc.Key()] {
			return Story{}, fmt.Errorf("outline[%d]: duplicate %s", i, sc.Key())
		}
		keys[sc.Key()] = true
	}
	return s, nil
}

// ParseBrainstorm decodes and validates a brainstorm document.
func ParseBrainstorm(data []byte) (Brainstorm, error) {
	var b Brainstorm
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Brainstorm{}, fmt.Errorf("invalid brainstorm yaml: %w", err)
	}
	if len(b.Entries) == 0 {
		return Brainstorm{}, errors.New("brainstorm file has no entries")
	}
	for i, e := range b.Entries {
		if e.Act <= 0 || e.Scene <= 0 {
			return Brainstorm{}, fmt.Errorf("entries[%d]: act and scene must be positive", i)
		}
		if strings.TrimSpace(e.Bucket) == "" {
			return Brainstorm{}, fmt.Errorf("entries[%d]: bucket is required", i)
		}
	}
	return b, nil
}

// ImportStory upserts metadata, characters (by name) and outline rows (by act, scene).
func (im Importer) ImportStory(ctx context.Context, s Story) (Result, error) {
	var res Result
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := im.Repo.SetMetadata(ctx, k, s.Metadata[k]); err != nil {
			return res, fmt.Errorf("metadata %s: %w", k, err)
		}
		res.Metadata++
	}
	for _, c := range s.Characters {
		c.Name = strings.TrimSpace(c.Name)
		if err := im.Repo.UpsertCharacter(ctx, c); err != nil {
			return res, fmt.Errorf("character %s: %w", c.Name, err)
		}
		res.Characters++
	}
	for _, sc := range s.Outline {
		if err := im.Repo.UpsertScene(ctx, sc); err != nil {
			return res, fmt.Errorf("outline %s: %w", sc.Key(), err)
		}
		res.Scenes++
	}
	err := im.emit(ctx, events.TypeIntakeImported, "project", im.Project, events.EventPayload{
		"metadata":   res.Metadata,
		"characters": res.Characters,
		"scenes":     res.Scenes,
	})
	return res, err
}

// ImportBrainstorm creates the next versioned brainstorm table and fills it.
func (im Importer) ImportBrainstorm(ctx context.Context, prefix string, b Brainstorm) (Result, error) {
	if prefix == "" {
		prefix = repo.DefaultBrainstormPrefix
	}
	table, err := im.Repo.CreateBrainstormTable(ctx, prefix)
	if err != nil {
		return Result{}, err
	}
	if err := im.Repo.InsertBrainstormEntries(ctx, table, b.Entries); err != nil {
		return Result{}, err
	}
	res := Result{Table: table, Entries: len(b.Entries)}
	err = im.emit(ctx, events.TypeBrainstormImported, "brainstorm_table", table, events.EventPayload{
		"entries": res.Entries,
	})
	return res, err
}

// InitProject seeds the bootstrap metadata and, optionally, an outline template.
// Existing metadata keys are left alone so init can be repeated.
func (im Importer) InitProject(ctx context.Context, name, template string) (Result, error) {
	var res Result
	var tpl []domain.SceneOutline
	if template != "" {
		var err error
		if tpl, err = Template(template); err != nil {
			return res, err
		}
	}
	meta, err := im.Repo.Metadata(ctx)
	if err != nil {
		return res, err
	}
	seed := map[string]string{
		"project_name":  name,
		"created_date":  im.now().UTC().Format(time.RFC3339),
		"lizzy_version": Version,
	}
	for _, k := range []string{"project_name", "created_date", "lizzy_version"} {
		if _, ok := meta[k]; ok {
			continue
		}
		if err := im.Repo.SetMetadata(ctx, k, seed[k]); err != nil {
			return res, err
		}
		res.Metadata++
	}
	for _, sc := range tpl {
		if err := im.Repo.UpsertScene(ctx, sc); err != nil {
			return res, err
		}
		res.Scenes++
	}
	err = im.emit(ctx, events.TypeProjectInitialized, "project", im.Project, events.EventPayload{
		"template": template,
		"scenes":   res.Scenes,
	})
	return res, err
}

// ReadStory reads and parses an intake file.
func ReadStory(path string) (Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Story{}, err
	}
	return ParseStory(data)
}

// ReadBrainstorm reads and parses a brainstorm file.
func ReadBrainstorm(path string) (Brainstorm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Brainstorm{}, err
	}
	return ParseBrainstorm(data)
}
