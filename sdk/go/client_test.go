package lizzysdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lizzy/internal/config"
	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/engine"
	"lizzy/internal/llm"
	"lizzy/internal/migrate"
	"lizzy/internal/repo"
	"lizzy/internal/server"
)

func newTestClient(t *testing.T) (*Client, engine.Engine) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace, Project: "sdk"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	e := engine.New(conn, cfg, workspace, "sdk")
	e.Generator = llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "The umbrella opened inside the elevator.", nil
	})
	ctx := context.Background()
	require.NoError(t, e.Repo.SetMetadata(ctx, "title", "Rain Check"))
	for _, s := range []domain.SceneOutline{
		{Act: 1, Scene: 1, Title: "Downpour"},
		{Act: 1, Scene: 2, Title: "Elevator"},
	} {
		require.NoError(t, e.Repo.UpsertScene(ctx, s))
	}

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL), e
}

func seedBrainstorm(t *testing.T, e engine.Engine, keys ...domain.SceneKey) {
	t.Helper()
	ctx := context.Background()
	table, err := e.Repo.CreateBrainstormTable(ctx, repo.DefaultBrainstormPrefix)
	require.NoError(t, err)
	var entries []domain.BrainstormEntry
	for _, k := range keys {
		entries = append(entries, domain.BrainstormEntry{Act: k.Act, Scene: k.Scene, Bucket: "plays", Response: "keep them in the room"})
	}
	require.NoError(t, e.Repo.InsertBrainstormEntries(ctx, table, entries))
}

func TestClientWriteFlow(t *testing.T) {
	c, e := newTestClient(t)
	ctx := context.Background()

	p, err := c.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rain Check", p.Metadata["title"])
	assert.Equal(t, 2, p.Counts.Scenes)

	outline, err := c.Outline(ctx)
	require.NoError(t, err)
	require.Len(t, outline, 2)
	assert.Equal(t, "Downpour", outline[0].Title)

	_, err = c.Write(ctx, WriteOptions{SkipExport: true})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "coverage_missing", apiErr.Code)

	seedBrainstorm(t, e, domain.SceneKey{Act: 1, Scene: 1}, domain.SceneKey{Act: 1, Scene: 2})
	cov, err := c.Coverage(ctx)
	require.NoError(t, err)
	assert.Empty(t, cov.Missing)
	assert.Equal(t, "brainstorm_v1", cov.Table)

	sum, err := c.Write(ctx, WriteOptions{Scenes: []string{"1:2"}, SkipExport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, "write_runs_v1", sum.RunTable)
	require.Len(t, sum.Scenes, 1)
	assert.Equal(t, 2, sum.Scenes[0].Scene)

	drafts, err := c.Drafts(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 1, drafts[0].Version)

	f, err := c.Final(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "The umbrella opened inside the elevator.", f.Text)

	res, err := c.Export(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scenes)
	assert.NotEmpty(t, res.Files)
}

func TestClientErrorsAndEvents(t *testing.T) {
	c, e := newTestClient(t)
	ctx := context.Background()

	_, err := c.Final(ctx, 4, 4)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	seedBrainstorm(t, e, domain.SceneKey{Act: 1, Scene: 1}, domain.SceneKey{Act: 1, Scene: 2})
	_, err = c.Write(ctx, WriteOptions{SkipExport: true})
	require.NoError(t, err)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "write.run.completed", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	rest, err := c.EventsPage(ctx, 10, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	assert.Equal(t, "write.run.started", rest.Items[1].Type)
	assert.Empty(t, rest.NextCursor)
}

func TestClientStoryEdits(t *testing.T) {
	c, e := newTestClient(t)
	ctx := context.Background()

	saved, err := c.SaveCharacter(ctx, Character{Name: "Iris", Role: "protagonist", Goals: "stay dry"})
	require.NoError(t, err)
	assert.Equal(t, "Iris", saved.Name)
	chars, err := c.Characters(ctx)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "stay dry", chars[0].Goals)

	scene, err := c.SaveScene(ctx, Scene{Act: 2, Scene: 1, Title: "Lobby", Location: "Hotel"})
	require.NoError(t, err)
	assert.Equal(t, 2, scene.Act)
	outline, err := c.Outline(ctx)
	require.NoError(t, err)
	require.Len(t, outline, 3)
	assert.Equal(t, "Lobby", outline[2].Title)

	require.NoError(t, c.DeleteScene(ctx, 1, 2))
	require.NoError(t, c.DeleteCharacter(ctx, "Iris"))
	err = c.DeleteCharacter(ctx, "Iris")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	p, err := c.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Counts.Characters)
	assert.Equal(t, 2, p.Counts.Scenes)

	evts, err := e.Repo.LatestEvents(ctx, repo.EventFilters{Type: "character.deleted"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "Iris", evts[0].EntityID)
}

func TestClientBasePath(t *testing.T) {
	c := &Client{BaseURL: "http://localhost:8080/"}
	assert.Equal(t, "http://localhost:8080", c.base())
	c.BasePath = "/v0/"
	assert.Equal(t, "http://localhost:8080/v0", c.base())
}
