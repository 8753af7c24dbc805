package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lizzy/internal/config"
	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/engine"
	"lizzy/internal/events"
	"lizzy/internal/llm"
	"lizzy/internal/migrate"
	"lizzy/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	ExportDir string
}

func newTestEnv(t *testing.T, gen llm.Generator) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir, Project: "demo"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Export.Dir = filepath.Join(dir, "exports")
	eng := engine.New(conn, cfg, dir, "demo")
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Generator = gen
	ctx := context.Background()
	require.NoError(t, eng.Repo.SetMetadata(ctx, "project_name", "Demo Story"))
	return testEnv{Engine: eng, Ctx: ctx, ExportDir: cfg.Export.Dir}
}

var sceneRe = regexp.MustCompile(`CURRENT SCENE: (Act \d+, Scene \d+)`)

func sceneOf(prompt string) string {
	m := sceneRe.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// echoGenerator writes "Text for <scene>" and records every prompt.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
	fail    map[string]error
	suffix  string
}

func (g *echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	scene := sceneOf(prompt)
	if err := g.fail[scene]; err != nil {
		return "", err
	}
	return "Text for " + scene + g.suffix, nil
}

func (env testEnv) seedOutline(t *testing.T, keys ...domain.SceneKey) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, env.Engine.Repo.UpsertScene(env.Ctx, domain.SceneOutline{
			Act:       k.Act,
			Scene:     k.Scene,
			Title:     fmt.Sprintf("Title %d-%d", k.Act, k.Scene),
			Location:  "Coffee shop",
			TimeOfDay: "Morning",
		}))
	}
}

func (env testEnv) seedBrainstorm(t *testing.T, bucket string, keys ...domain.SceneKey) string {
	t.Helper()
	table, err := env.Engine.Repo.CreateBrainstormTable(env.Ctx, repo.DefaultBrainstormPrefix)
	require.NoError(t, err)
	var entries []domain.BrainstormEntry
	for _, k := range keys {
		entries = append(entries, domain.BrainstormEntry{Act: k.Act, Scene: k.Scene, Bucket: bucket, Response: "idea for " + k.String()})
	}
	require.NoError(t, env.Engine.Repo.InsertBrainstormEntries(env.Ctx, table, entries))
	return table
}

func (env testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

var threeScenes = []domain.SceneKey{{Act: 1, Scene: 1}, {Act: 1, Scene: 2}, {Act: 2, Scene: 1}}

func TestRunWritesEverySceneAndExports(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, engine.StateDone, sum.State)
	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 3, sum.OutlineScenes)
	assert.Equal(t, "write_runs_v1", sum.RunTable)
	assert.Equal(t, "brainstorm_v1", sum.BrainstormTable)

	assert.Equal(t, 3, env.count(t, "finalized_scenes"))
	assert.Equal(t, 3, env.count(t, "scene_drafts"))
	assert.Equal(t, 3, env.count(t, "write_runs_v1"))

	require.NotNil(t, sum.Export)
	manuscript := filepath.Join(env.ExportDir, "Demo_Story_manuscript.txt")
	assert.Contains(t, sum.Export.Files, manuscript)
	assert.FileExists(t, filepath.Join(env.ExportDir, "Demo_Story_index.md"))
	assert.NoFileExists(t, filepath.Join(env.ExportDir, "Demo_Story_screenplay.txt"))
	data, err := os.ReadFile(manuscript)
	require.NoError(t, err)
	text := string(data)
	i11 := strings.Index(text, "=== Act 1, Scene 1: Title 1-1 ===")
	i12 := strings.Index(text, "=== Act 1, Scene 2: Title 1-2 ===")
	i21 := strings.Index(text, "=== Act 2, Scene 1: Title 2-1 ===")
	require.True(t, i11 >= 0 && i12 >= 0 && i21 >= 0, text)
	assert.True(t, i11 < i12 && i12 < i21)
	assert.Contains(t, text, "Text for Act 2, Scene 1")

	runs, err := env.Engine.Repo.ListWriteRuns(env.Ctx, sum.RunTable)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, gen.prompts[0], runs[0].Prompt)
	assert.Equal(t, "Text for Act 1, Scene 1", runs[0].Output)
	assert.Equal(t, "Title 1-1", runs[0].SceneTitle)

	drafts, err := env.Engine.Repo.ListDrafts(env.Ctx, repo.DraftFilters{})
	require.NoError(t, err)
	for _, d := range drafts {
		assert.Equal(t, 1, d.Version)
		assert.Equal(t, "draft", d.Status)
		assert.Len(t, d.DraftID, 36)
	}
}

func TestRunGeneratesInOutlineOrderAfterPredecessorIsFinal(t *testing.T) {
	env := newTestEnv(t, nil)
	var order []string
	var finalsSeen []int
	env.Engine.Generator = llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		finals, err := env.Engine.Repo.ListFinals(ctx)
		if err != nil {
			return "", err
		}
		order = append(order, sceneOf(prompt))
		finalsSeen = append(finalsSeen, len(finals))
		return "Text for " + sceneOf(prompt), nil
	})
	// inserted out of order on purpose
	env.seedOutline(t, domain.SceneKey{Act: 2, Scene: 1}, domain.SceneKey{Act: 1, Scene: 2}, domain.SceneKey{Act: 1, Scene: 1})
	env.seedBrainstorm(t, "books", threeScenes...)

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Act 1, Scene 1", "Act 1, Scene 2", "Act 2, Scene 1"}, order)
	assert.Equal(t, []int{0, 1, 2}, finalsSeen)
}

func TestRunFeedsPreviousFinalIntoPrompt(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 3)
	assert.Contains(t, gen.prompts[0], engine.NoPreviousScene)
	assert.Contains(t, gen.prompts[1], "Previous scene (final text):\nText for Act 1, Scene 1")
	// crossing the act boundary
	assert.Contains(t, gen.prompts[2], "Previous scene (final text):\nText for Act 1, Scene 2")
	assert.Contains(t, gen.prompts[2], engine.NoNextScene)
	assert.Contains(t, gen.prompts[1], "Next scene:\nScene Title: Title 2-1")
}

func TestRunFailsFastOnMissingCoverage(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", domain.SceneKey{Act: 1, Scene: 1}, domain.SceneKey{Act: 2, Scene: 1})

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{})
	require.Error(t, err)
	var cerr *engine.CoverageError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []domain.SceneKey{{Act: 1, Scene: 2}}, cerr.Missing)
	assert.Contains(t, err.Error(), "Act 1, Scene 2")
	assert.NotContains(t, err.Error(), "Act 2, Scene 1")
	assert.Equal(t, engine.StateFailed, sum.State)

	assert.Empty(t, gen.prompts)
	assert.Equal(t, 0, env.count(t, "finalized_scenes"))
	assert.Equal(t, 0, env.count(t, "scene_drafts"))
	tables, err := env.Engine.Repo.VersionedTables(env.Ctx, repo.WriteRunPrefix)
	require.NoError(t, err)
	assert.Empty(t, tables)
	assert.NoDirExists(t, env.ExportDir)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.TypeRunFailed})
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestRunTreatsBlankBrainstormAsMissing(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	table := env.seedBrainstorm(t, "books", domain.SceneKey{Act: 1, Scene: 1}, domain.SceneKey{Act: 2, Scene: 1})
	require.NoError(t, env.Engine.Repo.InsertBrainstormEntries(env.Ctx, table, []domain.BrainstormEntry{
		{Act: 1, Scene: 2, Bucket: "plays", Response: "   "},
	}))

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	var cerr *engine.CoverageError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, []domain.SceneKey{{Act: 1, Scene: 2}}, cerr.Missing)
	assert.Empty(t, gen.prompts)

	rep, err := env.Engine.Coverage(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SceneKey{{Act: 1, Scene: 2}}, rep.Missing)
}

func TestRunAggregatesEveryMissingScene(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})
	env.seedOutline(t, threeScenes...)

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{})
	var cerr *engine.CoverageError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, threeScenes, cerr.Missing)
	assert.Empty(t, cerr.Table)
}

func TestRunWithoutScenes(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})
	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{})
	require.ErrorIs(t, err, engine.ErrNoScenes)
	assert.Equal(t, engine.StateIdle, sum.State)
}

func TestRunWithoutRequiredCoverage(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.Engine.Config.Writer.RequireBrainstorm = false
	env.seedOutline(t, domain.SceneKey{Act: 1, Scene: 1})

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "(No brainstorm notes.)")
}

func TestRunContinuesPastGenerationFailure(t *testing.T) {
	gen := &echoGenerator{fail: map[string]error{"Act 1, Scene 2": errors.New("rate limited")}}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.Scenes[1].OK)
	assert.Equal(t, "rate limited", sum.Scenes[1].Error)

	f, err := env.Engine.Repo.GetFinal(env.Ctx, domain.SceneKey{Act: 1, Scene: 2})
	require.NoError(t, err)
	assert.Equal(t, "[GENERATION ERROR: rate limited]", f.Text)
	assert.Contains(t, f.Notes, "rate limited")
	assert.True(t, engine.IsErrorMarker(f.Text))

	runs, err := env.Engine.Repo.ListWriteRuns(env.Ctx, sum.RunTable)
	require.NoError(t, err)
	assert.Equal(t, "[GENERATION ERROR: rate limited]", runs[1].Output)
	assert.Equal(t, 3, env.count(t, "scene_drafts"))

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.TypeSceneFailed})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "1:2", evts[0].EntityID)
}

func TestPersistFailureLeavesNoPartialRows(t *testing.T) {
	env := newTestEnv(t, &echoGenerator{})
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)
	_, err := env.Engine.DB.ExecContext(env.Ctx, `CREATE TRIGGER reject_finals BEFORE INSERT ON finalized_scenes
BEGIN SELECT RAISE(ABORT, 'finals are read-only'); END`)
	require.NoError(t, err)

	_, err = env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.ErrorContains(t, err, "finals are read-only")
	assert.Equal(t, 0, env.count(t, "write_runs_v1"))
	assert.Equal(t, 0, env.count(t, "scene_drafts"))
	assert.Equal(t, 0, env.count(t, "finalized_scenes"))
}

func TestRunRecoversFromGeneratorPanic(t *testing.T) {
	env := newTestEnv(t, llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		panic("boom")
	}))
	env.seedOutline(t, domain.SceneKey{Act: 1, Scene: 1})
	env.seedBrainstorm(t, "books", domain.SceneKey{Act: 1, Scene: 1})

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	f, err := env.Engine.Repo.GetFinal(env.Ctx, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	assert.Contains(t, f.Text, "generator panic: boom")
}

func TestRerunReplacesFinalsAndKeepsDrafts(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	gen.suffix = " (second take)"
	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, "write_runs_v2", sum.RunTable)

	finals, err := env.Engine.Repo.ListFinals(env.Ctx)
	require.NoError(t, err)
	require.Len(t, finals, 3)
	for _, f := range finals {
		assert.Equal(t, "Text for "+f.Key().String()+" (second take)", f.Text)
	}
	drafts, err := env.Engine.Repo.ListDrafts(env.Ctx, repo.DraftFilters{Act: 1, Scene: 2})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, 1, drafts[0].Version)
	assert.Equal(t, 2, drafts[1].Version)
	assert.NotEqual(t, drafts[0].DraftID, drafts[1].DraftID)
}

func TestTargetedRunChecksOnlyListedScenes(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "scripts", domain.SceneKey{Act: 1, Scene: 2})

	sum, err := env.Engine.Run(env.Ctx, engine.RunOptions{Scenes: []domain.SceneKey{{Act: 1, Scene: 2}}, SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Attempted)
	assert.Equal(t, 3, sum.OutlineScenes)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "Act 1, Scene 2", sceneOf(gen.prompts[0]))

	_, err = env.Engine.Run(env.Ctx, engine.RunOptions{Scenes: []domain.SceneKey{{Act: 9, Scene: 9}}})
	require.ErrorContains(t, err, "Act 9, Scene 9")
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	env := newTestEnv(t, nil)
	env.Engine.Generator = llm.GeneratorFunc(func(context.Context, string) (string, error) {
		cancel()
		return "only scene", nil
	})
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	sum, err := env.Engine.Run(ctx, engine.RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Attempted)
	assert.Equal(t, 1, env.count(t, "finalized_scenes"))
}

func TestPreviousSceneText(t *testing.T) {
	env := newTestEnv(t, nil)
	scenes := []domain.SceneOutline{{Act: 1, Scene: 1}, {Act: 1, Scene: 2}, {Act: 1, Scene: 3}, {Act: 2, Scene: 1}, {Act: 2, Scene: 2}}
	for _, f := range []domain.FinalizedScene{
		{Act: 1, Scene: 1, Text: "one"},
		{Act: 1, Scene: 3, Text: "three"},
	} {
		require.NoError(t, env.Engine.Repo.UpsertFinal(env.Ctx, f))
	}

	got, err := env.Engine.PreviousSceneText(env.Ctx, domain.SceneKey{Act: 2, Scene: 1}, scenes)
	require.NoError(t, err)
	assert.Equal(t, "three", got)

	got, err = env.Engine.PreviousSceneText(env.Ctx, domain.SceneKey{Act: 1, Scene: 2}, scenes)
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	got, err = env.Engine.PreviousSceneText(env.Ctx, domain.SceneKey{Act: 1, Scene: 1}, scenes)
	require.NoError(t, err)
	assert.Empty(t, got)

	// (2,1) has no final, and (2,2) is not first in its act
	got, err = env.Engine.PreviousSceneText(env.Ctx, domain.SceneKey{Act: 2, Scene: 2}, scenes)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPreviousSceneTextWithContinuousNumbering(t *testing.T) {
	env := newTestEnv(t, nil)
	scenes := []domain.SceneOutline{{Act: 1, Scene: 1}, {Act: 1, Scene: 2}, {Act: 2, Scene: 3}, {Act: 2, Scene: 4}}
	require.NoError(t, env.Engine.Repo.UpsertFinal(env.Ctx, domain.FinalizedScene{Act: 1, Scene: 2, Text: "end of act one"}))

	got, err := env.Engine.PreviousSceneText(env.Ctx, domain.SceneKey{Act: 2, Scene: 3}, scenes)
	require.NoError(t, err)
	assert.Equal(t, "end of act one", got)
}

func TestNextSceneDescription(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedOutline(t, domain.SceneKey{Act: 1, Scene: 1}, domain.SceneKey{Act: 1, Scene: 2}, domain.SceneKey{Act: 2, Scene: 5}, domain.SceneKey{Act: 2, Scene: 7})

	got, err := env.Engine.NextSceneDescription(env.Ctx, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Scene Title: Title 1-2"))

	got, err = env.Engine.NextSceneDescription(env.Ctx, domain.SceneKey{Act: 1, Scene: 2})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Scene Title: Title 2-5"))

	got, err = env.Engine.NextSceneDescription(env.Ctx, domain.SceneKey{Act: 2, Scene: 7})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBucketContextGroupsRows(t *testing.T) {
	env := newTestEnv(t, nil)
	table, err := env.Engine.Repo.CreateBrainstormTable(env.Ctx, repo.DefaultBrainstormPrefix)
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.InsertBrainstormEntries(env.Ctx, table, []domain.BrainstormEntry{
		{Act: 1, Scene: 1, Bucket: "books", Response: "first"},
		{Act: 1, Scene: 1, Bucket: "plays", Response: "stage"},
		{Act: 1, Scene: 1, Bucket: "books", Response: "second"},
		{Act: 1, Scene: 2, Bucket: "books", Response: "other scene"},
	}))

	got, err := env.Engine.BucketContext(env.Ctx, table, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"books": "first\n\nsecond", "plays": "stage"}, got)

	got, err = env.Engine.BucketContext(env.Ctx, "", domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCoverageReport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", domain.SceneKey{Act: 1, Scene: 1})
	// a newer table wins
	table := env.seedBrainstorm(t, "scripts", domain.SceneKey{Act: 1, Scene: 2})

	rep, err := env.Engine.Coverage(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, table, rep.Table)
	assert.Equal(t, []domain.SceneKey{{Act: 1, Scene: 1}, {Act: 2, Scene: 1}}, rep.Missing)
	require.Len(t, rep.Scenes, 3)
	assert.Equal(t, map[string]int{"scripts": 1}, rep.Scenes[1].Buckets)
}

func TestPromptPreviewWritesNothing(t *testing.T) {
	gen := &echoGenerator{}
	env := newTestEnv(t, gen)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	prompt, err := env.Engine.PromptPreview(env.Ctx, domain.SceneKey{Act: 1, Scene: 2})
	require.NoError(t, err)
	assert.Contains(t, prompt, "CURRENT SCENE: Act 1, Scene 2")
	assert.Contains(t, prompt, ">> Act 1, Scene 2 — Title 1-2")
	assert.Empty(t, gen.prompts)
	assert.Equal(t, 0, env.count(t, "scene_drafts"))
}

func TestExportWithoutFinals(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Engine.Export(env.Ctx, "")
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.NoDirExists(t, env.ExportDir)
}

func TestExportScreenplay(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Engine.Config.Writer.Format = config.FormatScreenplay
	env.seedOutline(t, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, env.Engine.Repo.UpsertFinal(env.Ctx, domain.FinalizedScene{Act: 1, Scene: 1, Text: "MAYA\nTwo coffees."}))

	out := filepath.Join(t.TempDir(), "out")
	res, err := env.Engine.Export(env.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, out, res.Dir)
	assert.Equal(t, 1, res.Scenes)
	data, err := os.ReadFile(filepath.Join(out, "Demo_Story_screenplay.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "INT. COFFEE SHOP - MORNING\n\nMAYA\nTwo coffees.")
	assert.FileExists(t, filepath.Join(out, "Demo_Story_manuscript.txt"))
	assert.NoFileExists(t, filepath.Join(out, "Demo_Story_index.md"))
}

func TestSlugline(t *testing.T) {
	assert.Equal(t, "EXT. PARK - NIGHT", engine.Slugline(domain.SceneOutline{Location: "ext. park", TimeOfDay: "night"}))
	assert.Equal(t, "INT. UNKNOWN LOCATION - DAY", engine.Slugline(domain.SceneOutline{}))
}

func TestExportDirFallsBackToProjectFolder(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("HOME", t.TempDir())
	env.Engine.Config.Export.Dir = ""
	assert.Equal(t, filepath.Join(db.ProjectDir(env.Engine.Workspace, "demo"), "exports"), env.Engine.ExportDir(""))

	home := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(home, "Desktop"), 0o755))
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, "Desktop"), env.Engine.ExportDir(""))
	assert.Equal(t, "/explicit", env.Engine.ExportDir("/explicit"))
}

func TestStoryEditsAreLogged(t *testing.T) {
	env := newTestEnv(t, nil)
	e := env.Engine
	e.Actor = "editor"

	require.NoError(t, e.SaveCharacter(env.Ctx, domain.Character{Name: " Maya ", Role: "lead"}))
	require.Error(t, e.SaveCharacter(env.Ctx, domain.Character{Name: " "}))
	require.NoError(t, e.SaveScene(env.Ctx, domain.SceneOutline{Act: 1, Scene: 3, Title: "Rooftop"}))
	require.Error(t, e.SaveScene(env.Ctx, domain.SceneOutline{Act: 0, Scene: 1}))
	require.NoError(t, e.DeleteScene(env.Ctx, domain.SceneKey{Act: 1, Scene: 3}))
	require.ErrorIs(t, e.DeleteCharacter(env.Ctx, "Leo"), repo.ErrNotFound)
	require.NoError(t, e.DeleteCharacter(env.Ctx, "Maya"))

	evts, err := e.Repo.LatestEvents(env.Ctx, repo.EventFilters{})
	require.NoError(t, err)
	require.Len(t, evts, 4)
	assert.Equal(t, events.TypeCharacterDeleted, evts[0].Type)
	assert.Equal(t, events.TypeSceneDeleted, evts[1].Type)
	assert.Equal(t, "1:3", evts[1].EntityID)
	assert.Equal(t, events.TypeSceneSaved, evts[2].Type)
	assert.Equal(t, events.TypeCharacterSaved, evts[3].Type)
	assert.Equal(t, "Maya", evts[3].EntityID)
	assert.Equal(t, "editor", evts[3].ActorID)
}

func TestRunDeliversWebhooks(t *testing.T) {
	var mu sync.Mutex
	var got []string
	var sigOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		got = append(got, r.Header.Get("X-Lizzy-Event"))
		sigOK = r.Header.Get("X-Lizzy-Signature") == events.Sign("s3cret", body) && evt.Type == r.Header.Get("X-Lizzy-Event")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	env := newTestEnv(t, &echoGenerator{})
	hooks := []config.WebhookConfig{{URL: srv.URL, Secret: "s3cret", Events: []string{events.TypeRunStarted, events.TypeRunCompleted}}}
	env.Engine.Notifier = events.NewNotifier(env.Engine.Repo, "demo", hooks, nil)
	env.seedOutline(t, threeScenes...)
	env.seedBrainstorm(t, "books", threeScenes...)

	_, err := env.Engine.Run(env.Ctx, engine.RunOptions{SkipExport: true})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.TypeRunStarted, events.TypeRunCompleted}, got)
	assert.True(t, sigOK)
}
