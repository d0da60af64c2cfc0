package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-settings/internal/node"
	"github.com/nerrad567/gray-logic-settings/internal/shell"
)

var localCmd = &cobra.Command{
	Use:   "local <command> [args]",
	Short: "Run a settings command on the node database",
	Long: `Open the node database and schema and run one settings command.

Run "glsettings local help" for the list of commands. Changes are written
to the database and the change log; a running glsettingsd only sees them
after a restart, so prefer "glsettings remote" while the daemon is up.

Global flags go before "local":

  glsettings --config /etc/glsettings/config.yaml local list`,
	DisableFlagParsing: true,
	RunE:               runLocal,
}

func init() {
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	n, err := node.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := n.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	journal := node.NewJournal(ctx, n.ChangeLog, shell.Source(args), log)
	n.Registry.SetGlobalChangeFunc(journal.Changed)

	sh := shell.New(n.Registry, shell.WithHistory(n.ChangeLog))
	root := sh.Root("glsettings local")
	root.SetArgs(args)
	root.SetIn(cmd.InOrStdin())
	root.SetOut(cmd.OutOrStdout())
	root.SetErr(cmd.ErrOrStderr())
	return root.ExecuteContext(ctx)
}
