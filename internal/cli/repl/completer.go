package repl

import (
	"sort"
	"strings"
)

// Completer suggests commands by prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the given command paths
// (e.g. "session list") plus the built-ins.
func NewCompleter(commands []string) *Completer {
	all := append([]string{"help", "history", "exit", "quit"}, commands...)
	sort.Strings(all)
	return &Completer{commands: all}
}

// Complete returns the commands starting with prefix.
func (c *Completer) Complete(prefix string) []string {
	prefix = strings.Join(strings.Fields(prefix), " ")
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}

// Known reports whether word is a top-level command.
func (c *Completer) Known(word string) bool {
	for _, cmd := range c.commands {
		if cmd == word || strings.HasPrefix(cmd, word+" ") {
			return true
		}
	}
	return false
}
