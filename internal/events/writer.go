package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeRunStarted      = "write.run.started"
	TypeSceneGenerated  = "write.scene.generated"
	TypeSceneFailed     = "write.scene.failed"
	TypeRunFailed       = "write.run.failed"
	TypeExportCompleted = "write.export.completed"
	TypeRunCompleted    = "write.run.completed"

	TypeProjectInitialized = "project.initialized"
	TypeIntakeImported     = "intake.imported"
	TypeBrainstormImported = "brainstorm.imported"

	TypeCharacterSaved   = "character.saved"
	TypeCharacterDeleted = "character.deleted"
	TypeSceneSaved       = "outline.scene.saved"
	TypeSceneDeleted     = "outline.scene.deleted"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, db Execer, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
