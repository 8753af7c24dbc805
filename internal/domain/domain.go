package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SceneKey is the (act, scene) identity that orders the whole story.
type SceneKey struct {
	Act   int `json:"act"`
	Scene int `json:"scene"`
}

func (k SceneKey) String() string {
	return fmt.Sprintf("Act %d, Scene %d", k.Act, k.Scene)
}

// Less reports whether k comes before o in outline order.
func (k SceneKey) Less(o SceneKey) bool {
	if k.Act != o.Act {
		return k.Act < o.Act
	}
	return k.Scene < o.Scene
}

type Character struct {
	Name              string `json:"name" yaml:"name"`
	Role              string `json:"role,omitempty" yaml:"role"`
	Description       string `json:"description,omitempty" yaml:"description"`
	PersonalityTraits string `json:"personality_traits,omitempty" yaml:"personality_traits"`
	Backstory         string `json:"backstory,omitempty" yaml:"backstory"`
	Goals             string `json:"goals,omitempty" yaml:"goals"`
	Conflicts         string `json:"conflicts,omitempty" yaml:"conflicts"`
	RomanticChallenge string `json:"romantic_challenge,omitempty" yaml:"romantic_challenge"`
	LovableTrait      string `json:"lovable_trait,omitempty" yaml:"lovable_trait"`
	ComedicFlaw       string `json:"comedic_flaw,omitempty" yaml:"comedic_flaw"`
}

type SceneOutline struct {
	Act               int    `json:"act" yaml:"act"`
	Scene             int    `json:"scene" yaml:"scene"`
	Title             string `json:"title,omitempty" yaml:"title"`
	Location          string `json:"location,omitempty" yaml:"location"`
	TimeOfDay         string `json:"time_of_day,omitempty" yaml:"time_of_day"`
	CharactersPresent string `json:"characters_present,omitempty" yaml:"characters_present"`
	Purpose           string `json:"purpose,omitempty" yaml:"purpose"`
	KeyEvents         string `json:"key_events,omitempty" yaml:"key_events"`
	EmotionalBeats    string `json:"emotional_beats,omitempty" yaml:"emotional_beats"`
	DialogueNotes     string `json:"dialogue_notes,omitempty" yaml:"dialogue_notes"`
	Beat              string `json:"beat,omitempty" yaml:"beat"`
	Direction         string `json:"direction,omitempty" yaml:"direction"`
	PlotThreads       string `json:"plot_threads,omitempty" yaml:"plot_threads"`
	Notes             string `json:"notes,omitempty" yaml:"notes"`
}

func (s SceneOutline) Key() SceneKey {
	return SceneKey{Act: s.Act, Scene: s.Scene}
}

type BrainstormEntry struct {
	ID          int64  `json:"id"`
	Act         int    `json:"act" yaml:"act"`
	Scene       int    `json:"scene" yaml:"scene"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	Description string `json:"scene_description,omitempty" yaml:"description"`
	Response    string `json:"response" yaml:"response"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type WriteRunRecord struct {
	ID         int64  `json:"id"`
	Act        int    `json:"act"`
	Scene      int    `json:"scene"`
	SceneTitle string `json:"scene_title"`
	Prompt     string `json:"prompt"`
	Output     string `json:"output"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type SceneDraft struct {
	ID        int64  `json:"id"`
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	DraftID   string `json:"draft_id"`
	Text      string `json:"draft_text"`
	Version   int    `json:"version"`
	Status    string `json:"status" enum:"draft"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type FinalizedScene struct {
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	Text      string `json:"final_text"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func (f FinalizedScene) Key() SceneKey {
	return SceneKey{Act: f.Act, Scene: f.Scene}
}

// Coverage is the brainstorm bucket count for one outlined scene.
type Coverage struct {
	Act     int            `json:"act"`
	Scene   int            `json:"scene"`
	Title   string         `json:"title,omitempty"`
	Buckets map[string]int `json:"buckets"`
}

func (c Coverage) Covered() bool {
	return len(c.Buckets) > 0
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ParseSceneKey parses "act:scene" (also "act,scene" or "act.scene").
func ParseSceneKey(s string) (SceneKey, error) {
	var k SceneKey
	sep := strings.IndexAny(s, ":,.")
	if sep < 0 {
		return k, fmt.Errorf("invalid scene %q, want act:scene", s)
	}
	act, err := strconv.Atoi(strings.TrimSpace(s[:sep]))
	if err != nil {
		return k, fmt.Errorf("invalid act in %q: %w", s, err)
	}
	scene, err := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return k, fmt.Errorf("invalid scene in %q: %w", s, err)
	}
	if act <= 0 || scene <= 0 {
		return k, fmt.Errorf("act and scene must be positive in %q", s)
	}
	return SceneKey{Act: act, Scene: scene}, nil
}
