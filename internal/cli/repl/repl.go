package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Executor runs one command line, already split into arguments.
type Executor func(ctx context.Context, args []string) error

// Config configures a REPL.
type Config struct {
	Input  io.Reader
	Output io.Writer
	Prompt string

	// Commands are the command paths offered by help and suggestions.
	Commands []string

	// HistoryFile persists history across runs ("" = memory only).
	HistoryFile string

	Exec Executor
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     *bufio.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	completer *Completer
	history   *History
}

// New creates a new REPL instance. An Input that is already a
// *bufio.Reader is used as is, so the executor may share it.
func New(cfg Config) *REPL {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "> "
	}
	return &REPL{
		input:     bufio.NewReader(cfg.Input),
		output:    cfg.Output,
		prompt:    prompt,
		exec:      cfg.Exec,
		completer: NewCompleter(cfg.Commands),
		history:   NewHistory(cfg.HistoryFile, DefaultHistorySize),
	}
}

// Run reads lines until exit, EOF or ctx ends.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.output, "warning: history not loaded: %v\n", err)
	}
	defer func() {
		if err := r.history.Save(); err != nil {
			fmt.Fprintf(r.output, "warning: history not saved: %v\n", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		line, err := r.input.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line != "" {
			r.history.Add(line)
			if r.handle(ctx, line) {
				return nil
			}
		}
		if eof {
			fmt.Fprintln(r.output)
			return nil
		}
	}
}

// handle runs one line and reports whether the shell should stop.
func (r *REPL) handle(ctx context.Context, line string) bool {
	args, err := SplitArgs(line)
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return false
	}
	if len(args) == 0 || args[0] == "" {
		return false
	}

	switch args[0] {
	case "exit", "quit":
		return true
	case "help":
		for _, cmd := range r.completer.Complete(strings.Join(args[1:], " ")) {
			fmt.Fprintln(r.output, "  "+cmd)
		}
		return false
	case "history":
		for i, entry := range r.history.Entries() {
			fmt.Fprintf(r.output, "%4d  %s\n", i+1, entry)
		}
		return false
	}

	if !strings.HasPrefix(args[0], "-") && !r.completer.Known(args[0]) {
		fmt.Fprintf(r.output, "Error: unknown command %q", args[0])
		if s := r.completer.Complete(args[0][:1]); len(s) > 0 {
			fmt.Fprintf(r.output, " (try: %s)", strings.Join(s, ", "))
		}
		fmt.Fprintln(r.output)
		return false
	}

	if err := r.exec(ctx, args); err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
	return false
}

// SplitArgs splits a line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, ch := range line {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inWord = true
		case ch == ' ' || ch == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(ch)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
