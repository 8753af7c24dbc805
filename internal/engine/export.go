package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/events"
)

type ExportResult struct {
	Dir    string   `json:"dir,omitempty"`
	Files  []string `json:"files"`
	Scenes int      `json:"scenes"`
}

// ExportDir picks where exports go: the explicit dir, then the configured
// dir, then ~/Desktop when it exists, then the project's exports folder.
func (e Engine) ExportDir(override string) string {
	if override != "" {
		return override
	}
	if e.Config != nil && e.Config.Export.Dir != "" {
		return e.Config.Export.Dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		desktop := filepath.Join(home, "Desktop")
		if st, err := os.Stat(desktop); err == nil && st.IsDir() {
			return desktop
		}
	}
	return filepath.Join(db.ProjectDir(e.Workspace, e.Project), "exports")
}

// Export compiles the finalized scenes into the manuscript files. With no
// finalized scenes it writes nothing and only logs a warning.
func (e Engine) Export(ctx context.Context, dir string) (ExportResult, error) {
	res := ExportResult{Files: []string{}}
	finals, err := e.Repo.ListFinals(ctx)
	if err != nil {
		return res, err
	}
	if len(finals) == 0 {
		e.log().Warn("no finalized scenes to export")
		return res, nil
	}
	scenes, err := e.Repo.ListScenes(ctx)
	if err != nil {
		return res, err
	}
	meta, err := e.Repo.Metadata(ctx)
	if err != nil {
		return res, err
	}
	outline := make(map[domain.SceneKey]domain.SceneOutline, len(scenes))
	for _, s := range scenes {
		outline[s.Key()] = s
	}

	res.Dir = e.ExportDir(dir)
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create export dir: %w", err)
	}
	title := meta["project_name"]
	if title == "" {
		title = e.Project
	}
	base, err := db.SanitizeProjectName(title)
	if err != nil {
		base = "lizzy"
	}

	files := map[string]string{
		base + "_manuscript.txt": renderManuscript(title, meta["genre"], finals, outline),
	}
	if e.writerConfig().Screenplay() {
		files[base+"_screenplay.txt"] = renderScreenplay(title, finals, outline)
	} else {
		files[base+"_index.md"] = renderIndex(title, finals, outline)
	}
	for _, name := range sortedKeys(files) {
		path := filepath.Join(res.Dir, name)
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", name, err)
		}
		res.Files = append(res.Files, path)
	}
	res.Scenes = len(finals)

	e.log().Info("manuscript exported", zap.String("dir", res.Dir), zap.Int("scenes", res.Scenes), zap.Strings("files", res.Files))
	if err := e.emit(ctx, events.TypeExportCompleted, "export", "", events.EventPayload{
		"dir": res.Dir, "files": res.Files, "scenes": res.Scenes,
	}); err != nil {
		return res, err
	}
	return res, nil
}

func sceneHeading(f domain.FinalizedScene, outline map[domain.SceneKey]domain.SceneOutline) string {
	h := f.Key().String()
	if t := strings.TrimSpace(outline[f.Key()].Title); t != "" {
		h += ": " + t
	}
	return h
}

func renderManuscript(title, genre string, finals []domain.FinalizedScene, outline map[domain.SceneKey]domain.SceneOutline) string {
	var b strings.Builder
	b.WriteString(title + "\n")
	if genre != "" {
		b.WriteString(genre + "\n")
	}
	for _, f := range finals {
		b.WriteString("\n=== " + sceneHeading(f, outline) + " ===\n\n")
		b.WriteString(strings.TrimSpace(f.Text) + "\n")
	}
	return b.String()
}

func renderIndex(title string, finals []domain.FinalizedScene, outline map[domain.SceneKey]domain.SceneOutline) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n## Scenes\n\n")
	for _, f := range finals {
		s := outline[f.Key()]
		b.WriteString("- **" + sceneHeading(f, outline) + "**")
		var setting []string
		if s.Location != "" {
			setting = append(setting, s.Location)
		}
		if s.TimeOfDay != "" {
			setting = append(setting, s.TimeOfDay)
		}
		if len(setting) > 0 {
			b.WriteString(" (" + strings.Join(setting, ", ") + ")")
		}
		if IsErrorMarker(f.Text) {
			b.WriteString(" [generation failed]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderScreenplay(title string, finals []domain.FinalizedScene, outline map[domain.SceneKey]domain.SceneOutline) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(title) + "\n\nFADE IN:\n")
	for _, f := range finals {
		b.WriteString("\n" + Slugline(outline[f.Key()]) + "\n\n")
		b.WriteString(strings.TrimSpace(f.Text) + "\n")
	}
	b.WriteString("\nFADE OUT.\n")
	return b.String()
}

// Slugline renders the INT./EXT. heading for a scene.
func Slugline(s domain.SceneOutline) string {
	loc := strings.ToUpper(strings.TrimSpace(s.Location))
	if loc == "" {
		loc = "UNKNOWN LOCATION"
	}
	if !strings.HasPrefix(loc, "INT.") && !strings.HasPrefix(loc, "EXT.") && !strings.HasPrefix(loc, "INT/EXT.") {
		loc = "INT. " + loc
	}
	tod := strings.ToUpper(strings.TrimSpace(s.TimeOfDay))
	if tod == "" {
		tod = "DAY"
	}
	return loc + " - " + tod
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
