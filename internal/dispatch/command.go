package dispatch

import (
	"fmt"
	"strings"

	"github.com/MrWong99/currybot/internal/catalog"
)

// Kind classifies a chat message.
type Kind int

const (
	// KindTrigger is any message that is not an administrative command.
	KindTrigger Kind = iota
	KindJoin
	KindLeave
	KindReboot
	KindStop
	KindList
	KindStats
	KindHelp
	KindFind
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindTrigger:
		return "trigger"
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindReboot:
		return "reboot"
	case KindStop:
		return "stop"
	case KindList:
		return "list"
	case KindStats:
		return "stats"
	case KindHelp:
		return "help"
	case KindFind:
		return "find"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Definition describes one administrative command.
type Definition struct {
	Kind Kind

	// Aliases are the accepted spellings. The first alias is the command's
	// display name.
	Aliases []string

	Description string

	// Order applies to [KindList].
	Order catalog.Order

	// TakesArg marks commands written as "<alias> <argument>".
	TakesArg bool
}

// Definitions is the administrative command table in help order.
var Definitions = []Definition{
	{Kind: KindJoin, Aliases: []string{"summon cb", "cb init"}, Description: "Join the voice channel you are in."},
	{Kind: KindLeave, Aliases: []string{"destroy cb", "cb exit"}, Description: "Leave the voice channel."},
	{Kind: KindReboot, Aliases: []string{"revive cb", "cb reboot"}, Description: "Leave and rejoin your voice channel."},
	{Kind: KindStop, Aliases: []string{"shush cb", "cb stop"}, Description: "Stop the sound that is playing."},
	{Kind: KindList, Aliases: []string{"sounds", "soundsa"}, Order: catalog.Ascending, Description: "List all sounds, oldest first."},
	{Kind: KindList, Aliases: []string{"soundsd"}, Order: catalog.Descending, Description: "List all sounds, newest first."},
	{Kind: KindList, Aliases: []string{"soundss"}, Order: catalog.Alphabetical, Description: "List all sounds, sorted alphabetically."},
	{Kind: KindFind, Aliases: []string{"soundsf"}, TakesArg: true, Description: "Search sounds by name, e.g. `soundsf curry`."},
	{Kind: KindStats, Aliases: []string{"stats"}, Description: "Show how often you played each sound."},
	{Kind: KindHelp, Aliases: []string{"help", "halp"}, Description: "Show this message."},
}

// Command is a classified chat message.
type Command struct {
	Kind Kind

	// Name is the display name of the matched definition, empty for triggers.
	Name string

	// Text is the normalized message text.
	Text string

	// Arg is the argument of a [Definition.TakesArg] command.
	Arg string

	Order catalog.Order
}

var (
	exactAliases  = map[string]Definition{}
	prefixAliases []string
	prefixDefs    = map[string]Definition{}
)

func init() {
	for _, d := range Definitions {
		for _, a := range d.Aliases {
			exactAliases[a] = d
			if d.TakesArg {
				prefixAliases = append(prefixAliases, a)
				prefixDefs[a] = d
			}
		}
	}
}

// Classify maps message text to a [Command]. Matching is case-insensitive
// and ignores surrounding whitespace. Text that names no command is a
// [KindTrigger] candidate.
func Classify(text string) Command {
	norm := catalog.Normalize(text)
	if d, ok := exactAliases[norm]; ok {
		return Command{Kind: d.Kind, Name: d.Aliases[0], Text: norm, Order: d.Order}
	}
	for _, a := range prefixAliases {
		rest, ok := strings.CutPrefix(norm, a+" ")
		if !ok {
			continue
		}
		if arg := strings.TrimSpace(rest); arg != "" {
			d := prefixDefs[a]
			return Command{Kind: d.Kind, Name: d.Aliases[0], Text: norm, Arg: arg}
		}
	}
	return Command{Kind: KindTrigger, Text: norm}
}

// HelpText renders the help reply from [Definitions].
func HelpText() string {
	var b strings.Builder
	b.WriteString("CurryBot always checks if your message matches a sound trigger or a registered command. ")
	b.WriteString("Besides that, here are some helpful commands (plus any variations):\n\n")
	for _, d := range Definitions {
		fmt.Fprintf(&b, "__**%s**__: %s\n", d.Aliases[0], d.Description)
		for _, a := range d.Aliases[1:] {
			fmt.Fprintf(&b, "_%s_\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
