package tui

import (
	"sort"
	"strings"
)

// Command represents a parsed prompt command.
type Command struct {
	Name string
	Args string
}

// commandNames lists the prompt commands in completion order.
var commandNames = []string{"join", "leave", "older", "rooms", "logout", "help", "quit"}

var commandAliases = map[string]string{
	"j": "join",
	"h": "help",
	"q": "quit",
}

// ParseCommand parses a command string. A leading ':' is optional and
// short aliases are expanded to the full command name.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	return cmd
}

// CompleteCommand returns full prompt lines that extend line. The first
// word completes to a command name; the argument of join completes to a
// known room.
func CompleteCommand(line string, rooms []string) []string {
	line = strings.TrimLeft(line, " :")
	name, arg, hasArg := strings.Cut(line, " ")
	if !hasArg {
		var out []string
		for _, c := range commandNames {
			if strings.HasPrefix(c, strings.ToLower(name)) {
				out = append(out, c+" ")
			}
		}
		return out
	}
	if full, ok := commandAliases[strings.ToLower(name)]; ok {
		name = full
	}
	if strings.ToLower(name) != "join" {
		return nil
	}
	arg = strings.TrimSpace(arg)
	var out []string
	for _, r := range rooms {
		if strings.HasPrefix(strings.ToLower(r), strings.ToLower(arg)) {
			out = append(out, "join "+r)
		}
	}
	sort.Strings(out)
	return out
}
