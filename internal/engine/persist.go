package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"lizzy/internal/domain"
	"lizzy/internal/repo"
)

// persistScene writes the run log row, a new draft and the finalized text in
// one transaction. Failed generations are persisted as their error marker.
func (e Engine) persistScene(ctx context.Context, runTable string, scene domain.SceneOutline, prompt string, res GenerationResult) (domain.SceneDraft, error) {
	var draft domain.SceneDraft
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		var err error
		draft, err = persistSceneTx(ctx, tx, e.timestamp(), runTable, scene, prompt, res)
		return err
	})
	if err != nil {
		return domain.SceneDraft{}, err
	}
	return draft, nil
}

func persistSceneTx(ctx context.Context, r repo.Repo, ts, runTable string, scene domain.SceneOutline, prompt string, res GenerationResult) (domain.SceneDraft, error) {
	key := scene.Key()
	output := res.Output()
	if _, err := r.InsertWriteRun(ctx, runTable, domain.WriteRunRecord{
		Act:        key.Act,
		Scene:      key.Scene,
		SceneTitle: scene.Title,
		Prompt:     prompt,
		Output:     output,
		CreatedAt:  ts,
	}); err != nil {
		return domain.SceneDraft{}, fmt.Errorf("log run for %s: %w", key, err)
	}
	draft, err := r.InsertDraft(ctx, domain.SceneDraft{
		Act:       key.Act,
		Scene:     key.Scene,
		DraftID:   uuid.NewString(),
		Text:      output,
		Status:    "draft",
		CreatedAt: ts,
	})
	if err != nil {
		return domain.SceneDraft{}, fmt.Errorf("save draft for %s: %w", key, err)
	}
	notes := "write run " + runTable
	if !res.OK() {
		notes += "; generation failed: " + res.Err.Error()
	}
	if err := r.UpsertFinal(ctx, domain.FinalizedScene{
		Act:       key.Act,
		Scene:     key.Scene,
		Text:      output,
		Notes:     notes,
		CreatedAt: ts,
	}); err != nil {
		return domain.SceneDraft{}, fmt.Errorf("save final for %s: %w", key, err)
	}
	return draft, nil
}
