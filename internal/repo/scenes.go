package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lizzy/internal/domain"
)

const WriteRunPrefix = "write_runs"

// CreateWriteRunTable creates the next `write_runs_v{N}` log table.
func (r Repo) CreateWriteRunTable(ctx context.Context) (string, error) {
	name, err := r.NextVersionName(ctx, WriteRunPrefix)
	if err != nil {
		return "", err
	}
	_, err = r.conn().ExecContext(ctx, `CREATE TABLE `+quoteIdent(name)+` (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    act INTEGER NOT NULL,
    scene INTEGER NOT NULL,
    scene_title TEXT,
    prompt TEXT NOT NULL,
    output TEXT,
    created_at TEXT NOT NULL
)`)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return name, nil
}

func (r Repo) InsertWriteRun(ctx context.Context, table string, rec domain.WriteRunRecord) (domain.WriteRunRecord, error) {
	if err := validIdent(table); err != nil {
		return rec, err
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = r.now()
	}
	res, err := r.conn().ExecContext(ctx, `INSERT INTO `+quoteIdent(table)+`(act,scene,scene_title,prompt,output,created_at) VALUES (?,?,?,?,?,?)`,
		rec.Act, rec.Scene, nullable(rec.SceneTitle), rec.Prompt, rec.Output, rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	rec.ID, _ = res.LastInsertId()
	return rec, nil
}

func (r Repo) ListWriteRuns(ctx context.Context, table string) ([]domain.WriteRunRecord, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(table, WriteRunPrefix+"_v") {
		return nil, fmt.Errorf("%s is not a write run table", table)
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT id,act,scene,COALESCE(scene_title,''),prompt,COALESCE(output,''),created_at FROM `+quoteIdent(table)+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WriteRunRecord
	for rows.Next() {
		var rec domain.WriteRunRecord
		if err := rows.Scan(&rec.ID, &rec.Act, &rec.Scene, &rec.SceneTitle, &rec.Prompt, &rec.Output, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertDraft appends a draft with the next version number for its scene.
func (r Repo) InsertDraft(ctx context.Context, d domain.SceneDraft) (domain.SceneDraft, error) {
	if d.Status == "" {
		d.Status = "draft"
	}
	if d.CreatedAt == "" {
		d.CreatedAt = r.now()
	}
	err := r.InTx(ctx, func(tx Repo) error {
		q := tx.conn()
		if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0)+1 FROM scene_drafts WHERE act=? AND scene=?`, d.Act, d.Scene).Scan(&d.Version); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, `INSERT INTO scene_drafts(act,scene,draft_id,draft_text,version,status,created_at) VALUES (?,?,?,?,?,?,?)`,
			d.Act, d.Scene, d.DraftID, d.Text, d.Version, d.Status, d.CreatedAt)
		if err != nil {
			return err
		}
		d.ID, _ = res.LastInsertId()
		return nil
	})
	return d, err
}

type DraftFilters struct {
	Act   int
	Scene int
	Limit int
}

func (r Repo) ListDrafts(ctx context.Context, f DraftFilters) ([]domain.SceneDraft, error) {
	var clauses []string
	var args []any
	if f.Act > 0 {
		clauses = append(clauses, "act=?")
		args = append(args, f.Act)
	}
	if f.Scene > 0 {
		clauses = append(clauses, "scene=?")
		args = append(args, f.Scene)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,act,scene,draft_id,COALESCE(draft_text,''),version,status,created_at FROM scene_drafts ` + where + ` ORDER BY act ASC, scene ASC, version ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SceneDraft
	for rows.Next() {
		var d domain.SceneDraft
		if err := rows.Scan(&d.ID, &d.Act, &d.Scene, &d.DraftID, &d.Text, &d.Version, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// UpsertFinal replaces the finalized text for (act, scene).
func (r Repo) UpsertFinal(ctx context.Context, f domain.FinalizedScene) error {
	if f.CreatedAt == "" {
		f.CreatedAt = r.now()
	}
	_, err := r.conn().ExecContext(ctx, `INSERT INTO finalized_scenes(act,scene,final_text,notes,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(act,scene) DO UPDATE SET final_text=excluded.final_text, notes=excluded.notes, created_at=excluded.created_at`,
		f.Act, f.Scene, f.Text, nullable(f.Notes), f.CreatedAt)
	return err
}

const finalColumns = `act,scene,COALESCE(final_text,''),COALESCE(notes,''),created_at`

func scanFinal(row rowScanner) (domain.FinalizedScene, error) {
	var f domain.FinalizedScene
	err := row.Scan(&f.Act, &f.Scene, &f.Text, &f.Notes, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) GetFinal(ctx context.Context, key domain.SceneKey) (domain.FinalizedScene, error) {
	return scanFinal(r.conn().QueryRowContext(ctx, `SELECT `+finalColumns+` FROM finalized_scenes WHERE act=? AND scene=?`, key.Act, key.Scene))
}

// LastFinalInAct returns the finalized scene with the highest scene number in an act.
func (r Repo) LastFinalInAct(ctx context.Context, act int) (domain.FinalizedScene, error) {
	return scanFinal(r.conn().QueryRowContext(ctx, `SELECT `+finalColumns+` FROM finalized_scenes WHERE act=? ORDER BY scene DESC LIMIT 1`, act))
}

func (r Repo) ListFinals(ctx context.Context) ([]domain.FinalizedScene, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT `+finalColumns+` FROM finalized_scenes ORDER BY act ASC, scene ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FinalizedScene
	for rows.Next() {
		f, err := scanFinal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
