package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

const prompt = "settings> "

// Runner runs a function on the goroutine that owns the registry.
// *settings.Queue implements it.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Wrapper lets the caller decorate every console command, for example to
// attribute changes to a source. args is the parsed command line.
type Wrapper func(ctx context.Context, args []string, run func(ctx context.Context) error) error

// Serve reads command lines from in and runs each one on r until in is
// exhausted, "exit" is entered or ctx is cancelled between lines.
//
// Command errors are printed and do not stop the console.
func (s *Shell) Serve(ctx context.Context, in io.Reader, out io.Writer, r Runner, wrap Wrapper) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		args, err := splitLine(scanner.Text())
		switch {
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
		case len(args) == 0:
		case args[0] == "exit" || args[0] == "quit":
			return nil
		default:
			err := r.Do(ctx, func(ctx context.Context) error {
				run := func(ctx context.Context) error { return s.Execute(ctx, args, out) }
				if wrap != nil {
					return wrap(ctx, args, run)
				}
				return run(ctx)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}

var errUnterminatedQuote = errors.New("shell: unterminated quote")

// token is one word of a console line; end is its offset just past the
// word in the raw line.
type token struct {
	text string
	end  int
}

// splitLine splits a console line into arguments. Double quotes group
// words and keep their whitespace; inside them \" and \\ escape.
//
// For set and set-default the value is everything after the key: a single
// word is used as parsed, several words are taken verbatim from the line so
// a string value keeps its inner spacing.
func splitLine(line string) ([]string, error) {
	toks, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	args := make([]string, len(toks))
	for i, t := range toks {
		args[i] = t.text
	}
	if len(toks) > 3 && (args[0] == "set" || args[0] == "set-default") { //nolint:mnd // command, key, value
		return []string{args[0], args[1], strings.TrimSpace(line[toks[1].end:])}, nil
	}
	return args, nil
}

func tokenize(line string) ([]token, error) {
	var (
		toks    []token
		cur     strings.Builder
		inWord  bool
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\'):
			i++
			cur.WriteByte(line[i])
		case c == '"':
			inQuote = !inQuote
			inWord = true
		case !inQuote && (c == ' ' || c == '\t'):
			if inWord {
				toks = append(toks, token{text: cur.String(), end: i})
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inQuote {
		return nil, errUnterminatedQuote
	}
	if inWord {
		toks = append(toks, token{text: cur.String(), end: len(line)})
	}
	return toks, nil
}

// Source returns the change-log source a command line writes under.
func Source(args []string) string {
	if len(args) == 0 {
		return settings.ChangeSourceShell
	}
	switch args[0] {
	case "import":
		return settings.ChangeSourceJSON
	case "restore", "restore-one":
		return settings.ChangeSourceRestore
	default:
		return settings.ChangeSourceShell
	}
}
