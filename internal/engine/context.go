package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"lizzy/internal/domain"
	"lizzy/internal/repo"
)

const (
	NoPreviousScene   = "(No previous scene available.)"
	NoNextScene       = "(No next scene listed.)"
	truncationMarker  = "…"
	outlineTruncation = "\n… (outline truncated)"
)

// SceneInputs is everything the prompt builder needs for one scene.
type SceneInputs struct {
	Metadata     map[string]string
	Characters   []domain.Character
	Scene        domain.SceneOutline
	Buckets      map[string]string
	PreviousText string
	Snapshot     string
	NextScene    string
}

// SceneContext joins the non-empty descriptive fields of s, one per line.
func SceneContext(s domain.SceneOutline) string {
	fields := []struct{ label, value string }{
		{"Scene Title", s.Title},
		{"Location", s.Location},
		{"Time of Day", s.TimeOfDay},
		{"Characters Present", s.CharactersPresent},
		{"Purpose", s.Purpose},
		{"Key Events", s.KeyEvents},
		{"Emotional Beats", s.EmotionalBeats},
		{"Dialogue Notes", s.DialogueNotes},
		{"Beat", s.Beat},
		{"Direction", s.Direction},
		{"Plot Threads", s.PlotThreads},
		{"Notes", s.Notes},
	}
	var lines []string
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// CharacterDigest renders one line per character with its non-empty fields.
func CharacterDigest(chars []domain.Character) string {
	if len(chars) == 0 {
		return "(No characters defined.)"
	}
	var b strings.Builder
	for i, c := range chars {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + c.Name)
		if c.Role != "" {
			b.WriteString(" (" + c.Role + ")")
		}
		parts := []struct{ label, value string }{
			{"", c.Description},
			{"Traits", c.PersonalityTraits},
			{"Backstory", c.Backstory},
			{"Goals", c.Goals},
			{"Conflicts", c.Conflicts},
			{"Romantic challenge", c.RomanticChallenge},
			{"Lovable trait", c.LovableTrait},
			{"Comedic flaw", c.ComedicFlaw},
		}
		sep := ": "
		for _, p := range parts {
			v := strings.TrimSpace(p.value)
			if v == "" {
				continue
			}
			b.WriteString(sep)
			if p.label != "" {
				b.WriteString(p.label + ": ")
			}
			b.WriteString(v)
			sep = " | "
		}
	}
	return b.String()
}

// BoundText caps text at max runes, appending an ellipsis when it cuts.
// Blank text becomes the no-previous-scene placeholder. Bounding an already
// bounded text returns it unchanged.
func BoundText(text string, max int) string {
	if strings.TrimSpace(text) == "" {
		return NoPreviousScene
	}
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + truncationMarker
}

// OutlineSnapshot renders the whole outline one line per scene, flagging the
// current scene with ">>", and truncates past maxChars.
func OutlineSnapshot(scenes []domain.SceneOutline, current domain.SceneKey, maxChars int) string {
	lines := make([]string, 0, len(scenes))
	for _, s := range scenes {
		marker := "  "
		if s.Key() == current {
			marker = ">>"
		}
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, fmt.Sprintf("%s Act %d, Scene %d — %s", marker, s.Act, s.Scene, title))
	}
	out := strings.Join(lines, "\n")
	if maxChars > 0 && utf8.RuneCountInString(out) > maxChars {
		out = string([]rune(out)[:maxChars]) + outlineTruncation
	}
	return out
}

// BucketContext groups a scene's brainstorm rows by bucket. Multiple rows in
// one bucket are joined by a blank line. No table means no context.
func (e Engine) BucketContext(ctx context.Context, table string, key domain.SceneKey) (map[string]string, error) {
	res := map[string]string{}
	if table == "" {
		return res, nil
	}
	rows, err := e.Repo.BrainstormForScene(ctx, table, key)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		text := strings.TrimSpace(row.Response)
		if text == "" {
			continue
		}
		if prev, ok := res[row.Bucket]; ok {
			res[row.Bucket] = prev + "\n\n" + text
		} else {
			res[row.Bucket] = text
		}
	}
	return res, nil
}

var knownBuckets = []string{"books", "scripts", "plays"}

// BucketNames orders buckets as books, scripts, plays, then the rest by name.
func BucketNames(buckets map[string]string) []string {
	var names []string
	for _, b := range knownBuckets {
		if _, ok := buckets[b]; ok {
			names = append(names, b)
		}
	}
	var rest []string
	for b := range buckets {
		if !isKnownBucket(b) {
			rest = append(rest, b)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func isKnownBucket(b string) bool {
	for _, k := range knownBuckets {
		if k == b {
			return true
		}
	}
	return false
}

// PreviousSceneText returns the finalized text of the scene before key. The
// first outlined scene of an act reads the last finalized scene of the act
// before it.
func (e Engine) PreviousSceneText(ctx context.Context, key domain.SceneKey, scenes []domain.SceneOutline) (string, error) {
	if key.Scene > 1 {
		f, err := e.Repo.GetFinal(ctx, domain.SceneKey{Act: key.Act, Scene: key.Scene - 1})
		if err == nil {
			return f.Text, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}
	if key.Act <= 1 || !firstInAct(scenes, key) {
		return "", nil
	}
	f, err := e.Repo.LastFinalInAct(ctx, key.Act-1)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return f.Text, nil
}

func firstInAct(scenes []domain.SceneOutline, key domain.SceneKey) bool {
	if key.Scene == 1 {
		return true
	}
	for _, s := range scenes {
		if s.Act == key.Act && s.Scene < key.Scene {
			return false
		}
	}
	return true
}

// NextSceneDescription digests the outline scene after key, crossing into
// the next act when key is the last scene of its act.
func (e Engine) NextSceneDescription(ctx context.Context, key domain.SceneKey) (string, error) {
	s, err := e.Repo.GetScene(ctx, domain.SceneKey{Act: key.Act, Scene: key.Scene + 1})
	if errors.Is(err, repo.ErrNotFound) {
		s, err = e.Repo.FirstSceneInAct(ctx, key.Act+1)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if digest := SceneContext(s); digest != "" {
		return digest, nil
	}
	return s.Key().String(), nil
}

// assemble gathers the inputs for one scene. Missing optional context
// degrades to placeholders.
func (e Engine) assemble(ctx context.Context, wc WriterConfig, meta map[string]string, chars []domain.Character, scenes []domain.SceneOutline, scene domain.SceneOutline, table string) (SceneInputs, error) {
	key := scene.Key()
	buckets, err := e.BucketContext(ctx, table, key)
	if err != nil {
		return SceneInputs{}, fmt.Errorf("brainstorm for %s: %w", key, err)
	}
	prev, err := e.PreviousSceneText(ctx, key, scenes)
	if err != nil {
		return SceneInputs{}, fmt.Errorf("previous scene for %s: %w", key, err)
	}
	next, err := e.NextSceneDescription(ctx, key)
	if err != nil {
		return SceneInputs{}, fmt.Errorf("next scene for %s: %w", key, err)
	}
	if next == "" {
		next = NoNextScene
	}
	return SceneInputs{
		Metadata:     meta,
		Characters:   chars,
		Scene:        scene,
		Buckets:      buckets,
		PreviousText: BoundText(prev, wc.PrevSceneMaxChars),
		Snapshot:     OutlineSnapshot(scenes, key, wc.OutlineMaxChars),
		NextScene:    next,
	}, nil
}
