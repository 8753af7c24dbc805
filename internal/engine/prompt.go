package engine

import (
	"fmt"
	"strings"
)

const (
	DefaultPOV   = "third-person limited"
	DefaultTense = "past"
)

const tonePreset = `=== TONE PRESET: GOLDEN ERA ROMANTIC COMEDY ===
Write in the spirit of the classic romantic comedies of the late 1980s and 1990s.
- Chemistry comes from friction: the leads spark because they push against each other.
- Banter is quick, specific and character-revealing; every joke tells us who someone is.
- Vulnerability lands best right after a laugh; earn sincerity, never announce it.
- The city, the season and the small rituals of daily life are part of the romance.
- Obstacles come from who the characters are, not from contrived misunderstandings alone.
- Supporting characters have their own opinions and are allowed to be funnier than the leads.
- Keep the optimism: even painful moments should leave room for hope.`

// bucketGuidance frames how each knowledge source should be used.
var bucketGuidance = map[string]string{
	"books":   "BOOKS: Apply lessons from the craft of storytelling: scene structure, pacing, turning points, and how subtext carries emotion.",
	"scripts": "SCRIPTS: Compare this scene with how classic romcom screenplays handle the same beat; borrow the mechanics of the trope, then subvert or freshen it.",
	"plays":   "PLAYS: Think like a stage dramatist: use dramatic irony, heightened language and entrances or exits that shift the power in the room.",
}

const genericGuidance = "%s: Provide creative insight from this source that deepens the scene."

// BuildPrompt assembles the full generation prompt for one scene. Output
// depends only on its arguments.
func BuildPrompt(in SceneInputs, wc WriterConfig) string {
	var b strings.Builder
	section := func(title, body string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== " + title + " ===\n")
		b.WriteString(body)
	}

	b.WriteString(tonePreset)

	section("CONTINUITY LOCKS", continuityLocks(in))
	section("CHARACTERS", CharacterDigest(in.Characters))

	sceneCtx := SceneContext(in.Scene)
	if sceneCtx == "" {
		sceneCtx = "(No scene details provided.)"
	}
	section("CURRENT SCENE: "+in.Scene.Key().String(), sceneCtx)

	section("CONTINUITY CONTEXT", fmt.Sprintf("Previous scene (final text):\n%s\n\nStory outline:\n%s\n\nNext scene:\n%s",
		orPlaceholder(in.PreviousText, NoPreviousScene), in.Snapshot, orPlaceholder(in.NextScene, NoNextScene)))

	names := BucketNames(in.Buckets)
	section("EXPERT GUIDANCE", expertGuidance(names))
	section("BRAINSTORM NOTES", brainstormNotes(names, in.Buckets))

	section("STYLE", styleLine(wc))
	section("DO", bulletList(doList(wc)))
	section("DON'T", bulletList(dontList(wc)))

	unit := "prose scene"
	if wc.Screenplay() {
		unit = "screenplay scene"
	}
	section("TASK", fmt.Sprintf("Write %s as one complete %s. Silently plan the scene's beats first, then write it. Output only the scene content, with no title, preamble or commentary.",
		in.Scene.Key(), unit))
	return b.String()
}

func continuityLocks(in SceneInputs) string {
	pov := strings.TrimSpace(in.Metadata["pov"])
	if pov == "" {
		pov = DefaultPOV
	}
	tense := strings.TrimSpace(in.Metadata["tense"])
	if tense == "" {
		tense = DefaultTense
	}
	lines := []string{
		"Point of view: " + pov,
		"Tense: " + tense,
	}
	if genre := strings.TrimSpace(in.Metadata["genre"]); genre != "" {
		lines = append(lines, "Genre: "+genre)
	}
	var names []string
	for _, c := range in.Characters {
		names = append(names, c.Name)
	}
	if len(names) > 0 {
		lines = append(lines, "Character names (fixed spelling): "+strings.Join(names, ", "))
	}
	lines = append(lines,
		"Location: "+orPlaceholder(in.Scene.Location, "(as outlined)"),
		"Time of day: "+orPlaceholder(in.Scene.TimeOfDay, "(as outlined)"),
		"These are immutable facts. Do not change character names, the point of view, the tense, or this scene's location and time.")
	return strings.Join(lines, "\n")
}

func expertGuidance(buckets []string) string {
	if len(buckets) == 0 {
		return "(No brainstorm sources for this scene.)"
	}
	lines := make([]string, 0, len(buckets))
	for _, name := range buckets {
		if g, ok := bucketGuidance[name]; ok {
			lines = append(lines, g)
			continue
		}
		lines = append(lines, fmt.Sprintf(genericGuidance, strings.ToUpper(name)))
	}
	return strings.Join(lines, "\n")
}

func brainstormNotes(names []string, buckets map[string]string) string {
	if len(names) == 0 {
		return "(No brainstorm notes.)"
	}
	var b strings.Builder
	b.WriteString("Use these notes as inspiration only. Do not quote them or closely paraphrase them.")
	for _, name := range names {
		b.WriteString("\n\n[" + name + "]\n")
		b.WriteString(buckets[name])
	}
	return b.String()
}

func styleLine(wc WriterConfig) string {
	line := fmt.Sprintf("Style: %s | Tone: %s | Format: %s | Length: %s", wc.Style, wc.Tone, wc.Format, wordTarget(wc))
	if egg := strings.TrimSpace(wc.EasterEgg); egg != "" {
		line += "\nEaster egg: weave in this motif subtly: " + egg
	}
	return line
}

func wordTarget(wc WriterConfig) string {
	switch {
	case wc.MinWords > 0 && wc.MaxWords > 0:
		return fmt.Sprintf("%d-%d words", wc.MinWords, wc.MaxWords)
	case wc.MaxWords > 0:
		return fmt.Sprintf("up to %d words", wc.MaxWords)
	case wc.MinWords > 0:
		return fmt.Sprintf("at least %d words", wc.MinWords)
	}
	return "as long as the scene needs"
}

func doList(wc WriterConfig) []string {
	items := []string{
		"Preserve the point of view, the tense and the scene facts listed in the continuity locks.",
		"Pick up the emotional thread where the previous scene left it.",
		"Foreshadow the next scene without resolving it early.",
		"Give every character a distinct voice.",
		"Hit the scene's purpose, key events and emotional beats.",
	}
	if wc.Screenplay() {
		return append(items, "Use standard screenplay format: INT./EXT. sluglines, CHARACTER cues in caps, and concise present-tense action lines.")
	}
	return append(items, "Write continuous prose paragraphs.")
}

func dontList(wc WriterConfig) []string {
	items := []string{
		"Do not introduce new named characters.",
		"Do not alter established facts from earlier scenes.",
		"Do not copy the brainstorm notes verbatim.",
	}
	if wc.Screenplay() {
		return append(items, "Do not include camera directions or shot lists.")
	}
	return append(items, "Do not use headers, bullet points or scene labels.")
}

func bulletList(items []string) string {
	return "- " + strings.Join(items, "\n- ")
}

func orPlaceholder(v, placeholder string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}
