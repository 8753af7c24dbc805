package intake

import (
	"fmt"
	"sort"

	"lizzy/internal/domain"
)

const TemplateRomCom30 = "romcom-30"

type beat struct {
	act     int
	scene   int
	beat    string
	title   string
	purpose string
}

// Scenes are numbered continuously across acts (act 2 opens at scene 13).
var romcom30 = []beat{
	{1, 1, "Opening Image", "Chemical Equation", "Establish the world and where the protagonist starts"},
	{1, 2, "Theme Stated", "Emotional Baseline", "Introduce the theme through dialogue or action"},
	{1, 3, "Set-Up", "Meet Cute", "The romantic leads first encounter each other"},
	{1, 4, "Set-Up", "Meet Cute", "An initial spark that gives the romance momentum"},
	{1, 5, "Catalyst", "Stasis", "Show why the characters need to leave their routines"},
	{1, 6, "Catalyst", "Get Out", "An event disrupts the normal routine"},
	{1, 7, "Debate", "Romantic Complication", "Why they can't and won't fall for each other"},
	{1, 8, "Debate", "Romantic Complication", "One lead denies their feelings"},
	{1, 9, "Break Into Two", "Best Bet", "Dramatic pressure as a deadline looms"},
	{1, 10, "Break Into Two", "Best Bet", "The most obvious answer to the deadline"},
	{1, 11, "B Story", "Complication", "The second lead is revealed and tension rises"},
	{1, 12, "B Story", "First Revelation", "The characters begin to see how love actually works"},
	{2, 13, "Fun & Games", "Bonding Moments", "A series of bonding moments reveals their pasts"},
	{2, 14, "Fun & Games", "Subplot Hero", "Subplot characters mirror the bonding"},
	{2, 15, "Fun & Games", "Magic Moment", "A real sense of connection"},
	{2, 16, "Fun & Games", "Magic Moment", "Small realizations about each other"},
	{2, 17, "Midpoint", "Relationship Pause", "The relationship appears destined"},
	{2, 18, "Midpoint", "False Victory", "They act on feelings that turn out to be false footing"},
	{2, 19, "All Is Lost", "Lost Soul", "The relationship appears doomed"},
	{2, 20, "All Is Lost", "Lost Soul", "A misunderstanding turns inward"},
	{2, 21, "Self-Revelation", "Self-Revelation", "Confronting the worst of themselves"},
	{2, 22, "Self-Revelation", "Self-Revelation", "A new understanding of love"},
	{2, 23, "Psychological Turn", "Putting It Into Practice", "Testing the new understanding"},
	{2, 24, "Break Into Three", "Grand Decision", "Committing to win the other back"},
	{3, 25, "Finale", "Climactic Interaction", "The leads collide again with everything at stake"},
	{3, 26, "Finale", "Raising the Stakes", "New information complicates the reunion"},
	{3, 27, "Finale", "Proof & Revelation", "The breakthrough romantic scene"},
	{3, 28, "Finale", "Proof & Revelation", "The last obstacle is faced together"},
	{3, 29, "Final Image", "Final Chemical Equation", "A closing image that answers the opening"},
	{3, 30, "Final Image", "Final Chemical Equation", "The final note on what we have witnessed"},
}

var templates = map[string][]beat{
	TemplateRomCom30: romcom30,
}

// Template returns the outline rows for a named beat template.
func Template(name string) ([]domain.SceneOutline, error) {
	beats, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q (available: %v)", name, TemplateNames())
	}
	out := make([]domain.SceneOutline, 0, len(beats))
	for _, b := range beats {
		out = append(out, domain.SceneOutline{
			Act:     b.act,
			Scene:   b.scene,
			Beat:    b.beat,
			Title:   b.title,
			Purpose: b.purpose,
			Notes:   name + " template",
		})
	}
	return out, nil
}

func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
