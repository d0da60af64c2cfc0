package shell

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-settings/internal/jsonbridge"
	"github.com/nerrad567/gray-logic-settings/internal/protocol"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// ErrUnknownKey is returned when a command names a key that is not registered.
var ErrUnknownKey = errors.New("shell: setting with this key not found")

// ErrNoHistory is returned by the history command when no change log is attached.
var ErrNoHistory = errors.New("shell: change history not available")

const defaultHistoryLimit = 20

// History is the change log read by the history command.
type History interface {
	Recent(ctx context.Context, key string, limit int) ([]settings.ChangeRecord, error)
}

// Shell exposes a registry as a cobra command tree.
//
// The shell does not lock the registry. Run commands on the goroutine that
// owns it, for example through a settings.Queue.
type Shell struct {
	reg     *settings.Registry
	history History
}

// Option configures a Shell.
type Option func(*Shell)

// WithHistory attaches a change log for the history command.
func WithHistory(h History) Option {
	return func(s *Shell) { s.history = h }
}

// New creates a shell over a loaded registry.
func New(reg *settings.Registry, opts ...Option) *Shell {
	s := &Shell{reg: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns a fresh root command holding every subcommand.
func (s *Shell) Root(use string) *cobra.Command {
	root := &cobra.Command{
		Use:           use,
		Short:         "Inspect and change settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(s.Commands()...)
	return root
}

// Execute runs a single command line, writing output to out.
func (s *Shell) Execute(ctx context.Context, args []string, out io.Writer) error {
	root := s.Root("settings")
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// Commands returns a fresh set of subcommands, for mounting under another root.
func (s *Shell) Commands() []*cobra.Command {
	return []*cobra.Command{
		s.listCmd(),
		s.listChangedCmd(),
		s.getCmd(),
		s.setCmd(),
		s.setDefaultCmd(),
		s.restoreCmd(),
		s.restoreOneCmd(),
		s.clearChangedCmd(),
		s.clearChangedOneCmd(),
		s.exportCmd(),
		s.importCmd(),
		s.encodeCmd(),
		s.historyCmd(),
	}
}

func (s *Shell) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for st := range s.reg.All() {
				printSetting(cmd.OutOrStdout(), st)
			}
			return nil
		},
	}
}

func (s *Shell) listChangedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-changed",
		Short: "List settings changed since the flags were last cleared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for st := range s.reg.Changed() {
				printSetting(cmd.OutOrStdout(), st)
			}
			return nil
		},
	}
}

func (s *Shell) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.lookup(args[0])
			if err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (s *Shell) setCmd() *cobra.Command {
	return valueArgs(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting value",
		Long: `Set a setting value.

Bools take true/false or 1/0, integers any Go integer literal, bytes a hex
string. Everything after the key is the value, so strings may contain spaces.`,
		Args: cobra.MinimumNArgs(2), //nolint:mnd // key and value
		RunE: func(cmd *cobra.Command, args []string) error {
			st, data, err := s.parse(args)
			if err != nil {
				return err
			}
			if err := s.reg.SetValue(cmd.Context(), st.ID(), data); err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), st)
			return nil
		},
	})
}

func (s *Shell) setDefaultCmd() *cobra.Command {
	return valueArgs(&cobra.Command{
		Use:   "set-default <key> <value>",
		Short: "Provision a setting default",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd // key and value
		RunE: func(cmd *cobra.Command, args []string) error {
			st, data, err := s.parse(args)
			if err != nil {
				return err
			}
			if err := s.reg.SetDefault(cmd.Context(), st.ID(), data); err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), st)
			return nil
		},
	})
}

// valueArgs stops flag parsing at the key, so a value such as -5 reaches
// RunE as an argument instead of being read as a shorthand flag.
func valueArgs(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (s *Shell) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore all settings to their defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.reg.RestoreDefaults(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings restored to defaults")
			return nil
		},
	}
}

func (s *Shell) restoreOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-one <key>",
		Short: "Restore one setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.lookup(args[0])
			if err != nil {
				return err
			}
			if err := s.reg.RestoreDefault(cmd.Context(), st.ID()); err != nil {
				return err
			}
			printSetting(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (s *Shell) clearChangedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-changed",
		Short: "Clear the changed flag of every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s.reg.ClearAllChanged()
			fmt.Fprintln(cmd.OutOrStdout(), "changed flags cleared")
			return nil
		},
	}
}

func (s *Shell) clearChangedOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-changed-one <key>",
		Short: "Clear the changed flag of one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.lookup(args[0])
			if err != nil {
				return err
			}
			s.reg.ClearChanged(st.ID())
			return nil
		},
	}
}

func (s *Shell) exportCmd() *cobra.Command {
	var changedOnly, compact bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print settings as a JSON object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			export := jsonbridge.AllJSON
			if changedOnly {
				export = jsonbridge.ChangedJSON
			}
			data, err := export(s.reg)
			if err != nil {
				return err
			}
			if !compact {
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err != nil {
					return err
				}
				data = buf.Bytes()
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&changedOnly, "changed", false, "only settings with the changed flag")
	cmd.Flags().BoolVar(&compact, "compact", false, "single-line output")
	return cmd
}

func (s *Shell) importCmd() *cobra.Command {
	var markChanged bool
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Apply settings from a JSON object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading import: %w", err)
			}
			return jsonbridge.SetFromJSON(cmd.Context(), s.reg, data, markChanged)
		},
	}
	cmd.Flags().BoolVar(&markChanged, "mark-changed", false, "flag every imported setting as changed")
	return cmd
}

func (s *Shell) encodeCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "encode <key>",
		Short: "Print the wire record of a setting as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.lookup(args[0])
			if err != nil {
				return err
			}
			encode, size := protocol.Encode, protocol.EncodedLen(st)
			if full {
				encode, size = protocol.EncodeFull, protocol.EncodedFullLen(st)
			}
			buf := make([]byte, size)
			n, err := encode(st, buf)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(buf[:n]))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include default and max size")
	return cmd
}

func (s *Shell) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <key>",
		Short: "Show recent changes of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.history == nil {
				return ErrNoHistory
			}
			if _, err := s.lookup(args[0]); err != nil {
				return err
			}
			records, err := s.history.Recent(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %s\n",
					r.ChangedAt.Format(time.RFC3339), r.Source, r.Key)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of entries")
	return cmd
}

func (s *Shell) lookup(key string) (*settings.Setting, error) {
	st, ok := s.reg.LookupKey(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return st, nil
}

func (s *Shell) parse(args []string) (*settings.Setting, []byte, error) {
	st, err := s.lookup(args[0])
	if err != nil {
		return nil, nil, err
	}
	data, err := settings.ParseValue(st.Type(), strings.Join(args[1:], " "))
	if err != nil {
		return nil, nil, err
	}
	return st, data, nil
}

// printSetting writes one line in the form
//
//	id: 3, key: "name", value: "bench", default: /
func printSetting(w io.Writer, st *settings.Setting) {
	fmt.Fprintf(w, "id: %d, key: %q, value: %s, default: %s\n",
		st.ID(), st.Key(), formatData(st.Type(), st.Value), formatData(st.Type(), st.Default))
}

func formatData(typ settings.Type, get func() ([]byte, bool)) string {
	data, ok := get()
	if !ok {
		return "/"
	}
	text := settings.FormatValue(typ, data)
	if typ == settings.TypeStr {
		return fmt.Sprintf("%q", text)
	}
	return text
}
