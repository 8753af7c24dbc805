package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/migrate"
	"lizzy/internal/repo"
)

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir(), Project: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}, context.Background()
}

func TestLatestVersionIsNumeric(t *testing.T) {
	r, ctx := newRepo(t)
	for _, name := range []string{"brainstorm_v1", "brainstorm_v9", "brainstorm_v10", "brainstorm_v2", "brainstorm_vx", "brainstorm_v3_old", "write_runs_v40"} {
		_, err := r.DB.ExecContext(ctx, `CREATE TABLE "`+name+`" (id INTEGER)`)
		require.NoError(t, err)
	}

	v, err := r.ResolveLatestVersion(ctx, "brainstorm")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	name, err := r.LatestVersionName(ctx, "brainstorm")
	require.NoError(t, err)
	assert.Equal(t, "brainstorm_v10", name)

	next, err := r.NextVersionName(ctx, "brainstorm")
	require.NoError(t, err)
	assert.Equal(t, "brainstorm_v11", next)

	tables, err := r.VersionedTables(ctx, "brainstorm")
	require.NoError(t, err)
	var versions []int
	for _, tbl := range tables {
		versions = append(versions, tbl.Version)
	}
	assert.Equal(t, []int{1, 2, 9, 10}, versions)
}

func TestLatestVersionWhenNoneExist(t *testing.T) {
	r, ctx := newRepo(t)
	name, err := r.LatestVersionName(ctx, "brainstorm")
	require.NoError(t, err)
	assert.Empty(t, name)

	next, err := r.NextVersionName(ctx, "write_runs")
	require.NoError(t, err)
	assert.Equal(t, "write_runs_v1", next)

	_, err = r.VersionedTables(ctx, "bad name;")
	require.Error(t, err)
}

func TestBrainstormTables(t *testing.T) {
	r, ctx := newRepo(t)
	first, err := r.CreateBrainstormTable(ctx, repo.DefaultBrainstormPrefix)
	require.NoError(t, err)
	second, err := r.CreateBrainstormTable(ctx, repo.DefaultBrainstormPrefix)
	require.NoError(t, err)
	assert.Equal(t, "brainstorm_v1", first)
	assert.Equal(t, "brainstorm_v2", second)

	require.NoError(t, r.InsertBrainstormEntries(ctx, second, []domain.BrainstormEntry{
		{Act: 1, Scene: 1, Bucket: "books", Response: "a"},
		{Act: 1, Scene: 1, Bucket: "books", Response: "b"},
		{Act: 1, Scene: 1, Bucket: "plays", Response: "c"},
		{Act: 2, Scene: 1, Bucket: "scripts", Response: "d"},
		{Act: 2, Scene: 1, Bucket: "books", Response: "  "},
		{Act: 3, Scene: 1, Bucket: "plays", Response: ""},
	}))
	err = r.InsertBrainstormEntries(ctx, second, []domain.BrainstormEntry{{Act: 1, Scene: 1}})
	require.ErrorContains(t, err, "no bucket")

	rows, err := r.BrainstormForScene(ctx, second, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Response)
	assert.Equal(t, "c", rows[2].Response)

	counts, err := r.BucketCounts(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"books": 2, "plays": 1}, counts[domain.SceneKey{Act: 1, Scene: 1}])
	assert.Equal(t, map[string]int{"scripts": 1}, counts[domain.SceneKey{Act: 2, Scene: 1}])
	_, blankOnly := counts[domain.SceneKey{Act: 3, Scene: 1}]
	assert.False(t, blankOnly)

	_, err = r.BrainstormForScene(ctx, `x"; DROP TABLE characters; --`, domain.SceneKey{Act: 1, Scene: 1})
	require.Error(t, err)
}

func TestOutlineOrderingAndLookups(t *testing.T) {
	r, ctx := newRepo(t)
	for _, s := range []domain.SceneOutline{
		{Act: 2, Scene: 4, Title: "late"},
		{Act: 1, Scene: 2, Title: "second"},
		{Act: 2, Scene: 3, Title: "act two opener"},
		{Act: 1, Scene: 1, Title: "first", Direction: "nudge me"},
	} {
		require.NoError(t, r.UpsertScene(ctx, s))
	}
	scenes, err := r.ListScenes(ctx)
	require.NoError(t, err)
	var keys []domain.SceneKey
	for _, s := range scenes {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []domain.SceneKey{{Act: 1, Scene: 1}, {Act: 1, Scene: 2}, {Act: 2, Scene: 3}, {Act: 2, Scene: 4}}, keys)
	assert.Equal(t, "nudge me", scenes[0].Direction)

	first, err := r.FirstSceneInAct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "act two opener", first.Title)

	_, err = r.GetScene(ctx, domain.SceneKey{Act: 3, Scene: 1})
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	require.NoError(t, r.UpsertScene(ctx, domain.SceneOutline{Act: 1, Scene: 1, Title: "renamed"}))
	s, err := r.GetScene(ctx, domain.SceneKey{Act: 1, Scene: 1})
	require.NoError(t, err)
	assert.Equal(t, "renamed", s.Title)
	assert.Empty(t, s.Direction)

	require.Error(t, r.UpsertScene(ctx, domain.SceneOutline{Act: 0, Scene: 1}))
}

func TestFinalsUpsertAndLastInAct(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.UpsertFinal(ctx, domain.FinalizedScene{Act: 1, Scene: 1, Text: "v1"}))
	require.NoError(t, r.UpsertFinal(ctx, domain.FinalizedScene{Act: 1, Scene: 3, Text: "three"}))
	require.NoError(t, r.UpsertFinal(ctx, domain.FinalizedScene{Act: 1, Scene: 1, Text: "v2", Notes: "rerun"}))

	finals, err := r.ListFinals(ctx)
	require.NoError(t, err)
	require.Len(t, finals, 2)
	assert.Equal(t, "v2", finals[0].Text)
	assert.Equal(t, "rerun", finals[0].Notes)

	last, err := r.LastFinalInAct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, last.Scene)

	_, err = r.LastFinalInAct(ctx, 2)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDraftVersionsIncrementPerScene(t *testing.T) {
	r, ctx := newRepo(t)
	for i := 0; i < 3; i++ {
		d, err := r.InsertDraft(ctx, domain.SceneDraft{Act: 1, Scene: 1, DraftID: "d", Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, i+1, d.Version)
		assert.Equal(t, "draft", d.Status)
	}
	d, err := r.InsertDraft(ctx, domain.SceneDraft{Act: 1, Scene: 2, DraftID: "e"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Version)

	drafts, err := r.ListDrafts(ctx, repo.DraftFilters{Act: 1, Scene: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, drafts, 2)

	counts, err := r.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Drafts)
}

func TestWriteRunTables(t *testing.T) {
	r, ctx := newRepo(t)
	table, err := r.CreateWriteRunTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, "write_runs_v1", table)
	rec, err := r.InsertWriteRun(ctx, table, domain.WriteRunRecord{Act: 1, Scene: 1, SceneTitle: "t", Prompt: "p", Output: "o"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	runs, err := r.ListWriteRuns(ctx, table)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "p", runs[0].Prompt)

	_, err = r.ListWriteRuns(ctx, "characters")
	require.Error(t, err)
}

func TestCharactersAndMetadata(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.UpsertCharacter(ctx, domain.Character{Name: "Maya", Role: "protagonist"}))
	require.NoError(t, r.UpsertCharacter(ctx, domain.Character{Name: "Leo", Role: "love_interest"}))
	require.NoError(t, r.UpsertCharacter(ctx, domain.Character{Name: "Maya", Role: "lead", ComedicFlaw: "clumsy"}))
	require.Error(t, r.UpsertCharacter(ctx, domain.Character{}))

	chars, err := r.ListCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, "Maya", chars[0].Name)
	assert.Equal(t, "lead", chars[0].Role)
	assert.Equal(t, "clumsy", chars[0].ComedicFlaw)

	require.NoError(t, r.SetMetadata(ctx, "pov", "first person"))
	require.NoError(t, r.SetMetadata(ctx, "pov", "third-person limited"))
	meta, err := r.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "third-person limited", meta["pov"])
}

func TestDeleteCharacterAndScene(t *testing.T) {
	r, ctx := newRepo(t)
	require.NoError(t, r.UpsertCharacter(ctx, domain.Character{Name: "Maya"}))
	require.NoError(t, r.UpsertScene(ctx, domain.SceneOutline{Act: 1, Scene: 1, Title: "Opening"}))
	require.NoError(t, r.UpsertFinal(ctx, domain.FinalizedScene{Act: 1, Scene: 1, Text: "kept"}))

	require.NoError(t, r.DeleteCharacter(ctx, "Maya"))
	assert.ErrorIs(t, r.DeleteCharacter(ctx, "Maya"), repo.ErrNotFound)

	require.NoError(t, r.DeleteScene(ctx, domain.SceneKey{Act: 1, Scene: 1}))
	assert.ErrorIs(t, r.DeleteScene(ctx, domain.SceneKey{Act: 1, Scene: 1}), repo.ErrNotFound)

	counts, err := r.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, repo.Counts{Finalized: 1}, counts)
}

func TestInTxRollsBackOnError(t *testing.T) {
	r, ctx := newRepo(t)
	boom := errors.New("boom")
	err := r.InTx(ctx, func(tx repo.Repo) error {
		if _, err := tx.InsertDraft(ctx, domain.SceneDraft{Act: 1, Scene: 1, DraftID: "d1", Text: "x"}); err != nil {
			return err
		}
		require.NoError(t, tx.UpsertFinal(ctx, domain.FinalizedScene{Act: 1, Scene: 1, Text: "x"}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	drafts, err := r.ListDrafts(ctx, repo.DraftFilters{})
	require.NoError(t, err)
	assert.Empty(t, drafts)
	_, err = r.GetFinal(ctx, domain.SceneKey{Act: 1, Scene: 1})
	require.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.InTx(ctx, func(tx repo.Repo) error {
		_, err := tx.InsertDraft(ctx, domain.SceneDraft{Act: 1, Scene: 1, DraftID: "d2", Text: "y"})
		return err
	}))
	drafts, err = r.ListDrafts(ctx, repo.DraftFilters{})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 1, drafts[0].Version)
}
