package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lizzy/internal/domain"
)

type Repo struct {
	DB *sql.DB
	// Tx, when set, carries every statement of this Repo. See InTx.
	Tx  *sql.Tx
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn() DBTX {
	if r.Tx != nil {
		return r.Tx
	}
	return r.DB
}

// InTx runs fn with a Repo bound to a single transaction and commits when fn
// returns nil. Nested calls join the outer transaction.
func (r Repo) InTx(ctx context.Context, fn func(Repo) error) error {
	if r.Tx != nil {
		return fn(r)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(Repo{DB: r.DB, Tx: tx, Now: r.Now}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Metadata returns every project_metadata key/value pair.
func (r Repo) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT key, COALESCE(value,'') FROM project_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		res[k] = v
	}
	return res, rows.Err()
}

func (r Repo) SetMetadata(ctx context.Context, key, value string) error {
	now := r.now()
	_, err := r.conn().ExecContext(ctx, `INSERT INTO project_metadata(key,value,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now, now)
	return err
}

func (r Repo) ListCharacters(ctx context.Context) ([]domain.Character, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT name,
COALESCE(role,''), COALESCE(description,''), COALESCE(personality_traits,''), COALESCE(backstory,''),
COALESCE(goals,''), COALESCE(conflicts,''), COALESCE(romantic_challenge,''), COALESCE(lovable_trait,''),
COALESCE(comedic_flaw,'')
FROM characters ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Character
	for rows.Next() {
		var c domain.Character
		if err := rows.Scan(&c.Name, &c.Role, &c.Description, &c.PersonalityTraits, &c.Backstory,
			&c.Goals, &c.Conflicts, &c.RomanticChallenge, &c.LovableTrait, &c.ComedicFlaw); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpsertCharacter(ctx context.Context, c domain.Character) error {
	if c.Name == "" {
		return errors.New("character name is required")
	}
	now := r.now()
	_, err := r.conn().ExecContext(ctx, `INSERT INTO characters(name,role,description,personality_traits,backstory,goals,conflicts,romantic_challenge,lovable_trait,comedic_flaw,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET role=excluded.role, description=excluded.description,
personality_traits=excluded.personality_traits, backstory=excluded.backstory, goals=excluded.goals,
conflicts=excluded.conflicts, romantic_challenge=excluded.romantic_challenge,
lovable_trait=excluded.lovable_trait, comedic_flaw=excluded.comedic_flaw, updated_at=excluded.updated_at`,
		c.Name, nullable(c.Role), nullable(c.Description), nullable(c.PersonalityTraits), nullable(c.Backstory),
		nullable(c.Goals), nullable(c.Conflicts), nullable(c.RomanticChallenge), nullable(c.LovableTrait),
		nullable(c.ComedicFlaw), now, now)
	return err
}

// DeleteCharacter removes a character by name.
func (r Repo) DeleteCharacter(ctx context.Context, name string) error {
	res, err := r.conn().ExecContext(ctx, `DELETE FROM characters WHERE name=?`, name)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

const outlineColumns = `act, scene, COALESCE(scene_title,''), COALESCE(location,''), COALESCE(time_of_day,''),
COALESCE(characters_present,''), COALESCE(scene_purpose,''), COALESCE(key_events,''), COALESCE(emotional_beats,''),
COALESCE(dialogue_notes,''), COALESCE(beat,''), COALESCE(nudge,''), COALESCE(plot_threads,''), COALESCE(notes,'')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (domain.SceneOutline, error) {
	var s domain.SceneOutline
	err := row.Scan(&s.Act, &s.Scene, &s.Title, &s.Location, &s.TimeOfDay, &s.CharactersPresent, &s.Purpose,
		&s.KeyEvents, &s.EmotionalBeats, &s.DialogueNotes, &s.Beat, &s.Direction, &s.PlotThreads, &s.Notes)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// ListScenes returns the outline ordered by act, then scene.
func (r Repo) ListScenes(ctx context.Context) ([]domain.SceneOutline, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT `+outlineColumns+` FROM story_outline ORDER BY act ASC, scene ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SceneOutline
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetScene(ctx context.Context, key domain.SceneKey) (domain.SceneOutline, error) {
	return scanScene(r.conn().QueryRowContext(ctx, `SELECT `+outlineColumns+` FROM story_outline WHERE act=? AND scene=?`, key.Act, key.Scene))
}

// FirstSceneInAct returns the lowest-numbered outline scene of an act.
func (r Repo) FirstSceneInAct(ctx context.Context, act int) (domain.SceneOutline, error) {
	return scanScene(r.conn().QueryRowContext(ctx, `SELECT `+outlineColumns+` FROM story_outline WHERE act=? ORDER BY scene ASC LIMIT 1`, act))
}

func (r Repo) UpsertScene(ctx context.Context, s domain.SceneOutline) error {
	if s.Act <= 0 || s.Scene <= 0 {
		return errors.New("act and scene must be positive")
	}
	now := r.now()
	_, err := r.conn().ExecContext(ctx, `INSERT INTO story_outline(act,scene,beat,scene_title,location,time_of_day,characters_present,scene_purpose,key_events,nudge,emotional_beats,dialogue_notes,plot_threads,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(act,scene) DO UPDATE SET beat=excluded.beat, scene_title=excluded.scene_title, location=excluded.location,
time_of_day=excluded.time_of_day, characters_present=excluded.characters_present, scene_purpose=excluded.scene_purpose,
key_events=excluded.key_events, nudge=excluded.nudge, emotional_beats=excluded.emotional_beats,
dialogue_notes=excluded.dialogue_notes, plot_threads=excluded.plot_threads, notes=excluded.notes, updated_at=excluded.updated_at`,
		s.Act, s.Scene, nullable(s.Beat), nullable(s.Title), nullable(s.Location), nullable(s.TimeOfDay),
		nullable(s.CharactersPresent), nullable(s.Purpose), nullable(s.KeyEvents), nullable(s.Direction),
		nullable(s.EmotionalBeats), nullable(s.DialogueNotes), nullable(s.PlotThreads), nullable(s.Notes), now, now)
	return err
}

// DeleteScene removes one outline scene. Drafts and finals written for it are kept.
func (r Repo) DeleteScene(ctx context.Context, key domain.SceneKey) error {
	res, err := r.conn().ExecContext(ctx, `DELETE FROM story_outline WHERE act=? AND scene=?`, key.Act, key.Scene)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type Counts struct {
	Characters int `json:"characters"`
	Scenes     int `json:"scenes"`
	Drafts     int `json:"drafts"`
	Finalized  int `json:"finalized"`
}

func (r Repo) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.conn().QueryRowContext(ctx, `SELECT
(SELECT COUNT(*) FROM characters),
(SELECT COUNT(*) FROM story_outline),
(SELECT COUNT(*) FROM scene_drafts),
(SELECT COUNT(*) FROM finalized_scenes)`).Scan(&c.Characters, &c.Scenes, &c.Drafts, &c.Finalized)
	return c, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
