package engine

import (
	"context"
	"fmt"
	"strings"

	"lizzy/internal/domain"
	"lizzy/internal/events"
	"lizzy/internal/repo"
)

// appendTx records an event inside the caller's transaction.
func (e Engine) appendTx(ctx context.Context, tx repo.Repo, evtType, entityKind, entityID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx.Tx, evtType, e.Project, entityKind, entityID, e.actor(), payload)
}

// SaveCharacter creates or replaces a character and logs character.saved.
func (e Engine) SaveCharacter(ctx context.Context, c domain.Character) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("invalid character: name is required")
	}
	return e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.UpsertCharacter(ctx, c); err != nil {
			return err
		}
		return e.appendTx(ctx, tx, events.TypeCharacterSaved, "character", c.Name, events.EventPayload{"role": c.Role})
	})
}

// DeleteCharacter returns repo.ErrNotFound when no character has that name.
func (e Engine) DeleteCharacter(ctx context.Context, name string) error {
	return e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.DeleteCharacter(ctx, name); err != nil {
			return err
		}
		return e.appendTx(ctx, tx, events.TypeCharacterDeleted, "character", name, nil)
	})
}

// SaveScene creates or replaces one outline scene and logs outline.scene.saved.
func (e Engine) SaveScene(ctx context.Context, s domain.SceneOutline) error {
	return e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.UpsertScene(ctx, s); err != nil {
			return err
		}
		return e.appendTx(ctx, tx, events.TypeSceneSaved, "scene", sceneEntityID(s.Key()), events.EventPayload{"title": s.Title})
	})
}

func (e Engine) DeleteScene(ctx context.Context, key domain.SceneKey) error {
	return e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.DeleteScene(ctx, key); err != nil {
			return err
		}
		return e.appendTx(ctx, tx, events.TypeSceneDeleted, "scene", sceneEntityID(key), nil)
	})
}

func sceneEntityID(k domain.SceneKey) string {
	return fmt.Sprintf("%d:%d", k.Act, k.Scene)
}
