package dispatch

import (
	"strings"
	"testing"

	"github.com/MrWong99/currybot/internal/catalog"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text  string
		kind  Kind
		name  string
		arg   string
		order catalog.Order
	}{
		{text: "summon cb", kind: KindJoin, name: "summon cb"},
		{text: "CB Init", kind: KindJoin, name: "summon cb"},
		{text: "  destroy cb ", kind: KindLeave, name: "destroy cb"},
		{text: "cb exit", kind: KindLeave, name: "destroy cb"},
		{text: "revive cb", kind: KindReboot, name: "revive cb"},
		{text: "cb reboot", kind: KindReboot, name: "revive cb"},
		{text: "shush cb", kind: KindStop, name: "shush cb"},
		{text: "cb stop", kind: KindStop, name: "shush cb"},
		{text: "sounds", kind: KindList, name: "sounds", order: catalog.Ascending},
		{text: "SOUNDSA", kind: KindList, name: "sounds", order: catalog.Ascending},
		{text: "soundsd", kind: KindList, name: "soundsd", order: catalog.Descending},
		{text: "soundss", kind: KindList, name: "soundss", order: catalog.Alphabetical},
		{text: "stats", kind: KindStats, name: "stats"},
		{text: "help", kind: KindHelp, name: "help"},
		{text: "halp", kind: KindHelp, name: "help"},
		{text: "soundsf Curry", kind: KindFind, name: "soundsf", arg: "curry"},
		{text: "soundsf   big  boi ", kind: KindFind, name: "soundsf", arg: "big  boi"},
		{text: "soundsf", kind: KindFind, name: "soundsf"},
		{text: "soundsfx", kind: KindTrigger},
		{text: "summon cb now", kind: KindTrigger},
		{text: "Curry Time", kind: KindTrigger},
		{text: "", kind: KindTrigger},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			got := Classify(tc.text)
			if got.Kind != tc.kind {
				t.Fatalf("Kind = %s, want %s", got.Kind, tc.kind)
			}
			if got.Name != tc.name {
				t.Errorf("Name = %q, want %q", got.Name, tc.name)
			}
			if got.Arg != tc.arg {
				t.Errorf("Arg = %q, want %q", got.Arg, tc.arg)
			}
			if got.Order != tc.order {
				t.Errorf("Order = %s, want %s", got.Order, tc.order)
			}
			if want := catalog.Normalize(tc.text); got.Text != want {
				t.Errorf("Text = %q, want %q", got.Text, want)
			}
		})
	}
}

func TestHelpText_ListsEveryAlias(t *testing.T) {
	t.Parallel()

	help := HelpText()
	if !strings.HasPrefix(help, "CurryBot always checks") {
		t.Errorf("help text starts with %q", help[:min(len(help), 30)])
	}
	for _, d := range Definitions {
		if !strings.Contains(help, "__**"+d.Aliases[0]+"**__: "+d.Description) {
			t.Errorf("help text missing heading for %q", d.Aliases[0])
		}
		for _, a := range d.Aliases[1:] {
			if !strings.Contains(help, "_"+a+"_") {
				t.Errorf("help text missing alias %q", a)
			}
		}
	}
}

func TestDefinitions_AliasesUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, d := range Definitions {
		if len(d.Aliases) == 0 {
			t.Fatalf("definition %s has no aliases", d.Kind)
		}
		for _, a := range d.Aliases {
			if seen[a] {
				t.Errorf("alias %q defined twice", a)
			}
			if a != catalog.Normalize(a) {
				t.Errorf("alias %q is not normalized", a)
			}
			seen[a] = true
		}
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	c, err := catalog.New(
		catalog.Entry{Key: "curry time", Clip: "curry.mp3"},
		catalog.Entry{Key: "big boi", Clip: "boi.mp3"},
		catalog.Entry{Key: "curri", Clip: "curri.mp3"},
		catalog.Entry{Key: "nope", Clip: "nope.mp3"},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		term string
		want []string
	}{
		{"curry", []string{"curry time", "curri"}},
		{"BOI", []string{"big boi"}},
		{"nothing like it", nil},
		{"", nil},
	}
	for _, tc := range tests {
		t.Run(tc.term, func(t *testing.T) {
			t.Parallel()
			got := Find(c, tc.term)
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("Find(%q) = %v, want %v", tc.term, got, tc.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	if got := KindFind.String(); got != "find" {
		t.Errorf("KindFind.String() = %q", got)
	}
	if got := Kind(99).String(); got != "Kind(99)" {
		t.Errorf("Kind(99).String() = %q", got)
	}
}
