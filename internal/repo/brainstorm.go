package repo

import (
	"context"
	"fmt"

	"lizzy/internal/domain"
)

const DefaultBrainstormPrefix = "brainstorm"

// CreateBrainstormTable creates the next `{prefix}_v{N}` brainstorm table and
// returns its name.
func (r Repo) CreateBrainstormTable(ctx context.Context, prefix string) (string, error) {
	name, err := r.NextVersionName(ctx, prefix)
	if err != nil {
		return "", err
	}
	_, err = r.conn().ExecContext(ctx, `CREATE TABLE `+quoteIdent(name)+` (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    act INTEGER NOT NULL,
    scene INTEGER NOT NULL,
    scene_description TEXT,
    bucket_name TEXT NOT NULL,
    response TEXT,
    created_at TEXT NOT NULL
)`)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return name, nil
}

func (r Repo) InsertBrainstormEntries(ctx context.Context, table string, entries []domain.BrainstormEntry) error {
	if err := validIdent(table); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := r.now()
	for _, e := range entries {
		if e.Bucket == "" {
			return fmt.Errorf("brainstorm entry for %s has no bucket", domain.SceneKey{Act: e.Act, Scene: e.Scene})
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+quoteIdent(table)+`(act,scene,scene_description,bucket_name,response,created_at) VALUES (?,?,?,?,?,?)`,
			e.Act, e.Scene, nullable(e.Description), e.Bucket, e.Response, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BrainstormForScene returns the rows of one scene in insertion order.
func (r Repo) BrainstormForScene(ctx context.Context, table string, key domain.SceneKey) ([]domain.BrainstormEntry, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT id,act,scene,COALESCE(scene_description,''),bucket_name,COALESCE(response,''),created_at
FROM `+quoteIdent(table)+` WHERE act=? AND scene=? ORDER BY id ASC`, key.Act, key.Scene)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BrainstormEntry
	for rows.Next() {
		var e domain.BrainstormEntry
		if err := rows.Scan(&e.ID, &e.Act, &e.Scene, &e.Description, &e.Bucket, &e.Response, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// BucketCounts returns, per scene, how many rows with a non-blank response
// each bucket holds. Blank rows never reach a prompt, so they do not count.
func (r Repo) BucketCounts(ctx context.Context, table string) (map[domain.SceneKey]map[string]int, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	rows, err := r.conn().QueryContext(ctx, `SELECT act, scene, bucket_name, COUNT(*) FROM `+quoteIdent(table)+`
WHERE TRIM(COALESCE(response,''))<>'' GROUP BY act, scene, bucket_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.SceneKey]map[string]int{}
	for rows.Next() {
		var key domain.SceneKey
		var bucket string
		var n int
		if err := rows.Scan(&key.Act, &key.Scene, &bucket, &n); err != nil {
			return nil, err
		}
		if res[key] == nil {
			res[key] = map[string]int{}
		}
		res[key][bucket] = n
	}
	return res, rows.Err()
}
