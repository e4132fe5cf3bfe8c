// Command imessage-bot scaffolds new bots on top of the framework in
// this repository.
package main

import (
	"fmt"
	"os"

	"github.com/shrey150/imessage-bots/core/buildinfo"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "imessage-bot",
		Short:         "Scaffolding for iMessage bots built on BlueBubbles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imessage-bot:", err)
		os.Exit(1)
	}
}

func newCreateCmd() *cobra.Command {
	var (
		port int
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new bot skeleton",
		Long: `Create a new bot skeleton: a main.go wired to the framework, a
config.yaml, a .env.example, and a README. The directory must not
already exist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := scaffold(args[0], dir, port)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created bot %q in %s\n", args[0], created)
			fmt.Fprintf(cmd.OutOrStdout(), "📁 Next steps:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "   cd %s\n", created)
			fmt.Fprintf(cmd.OutOrStdout(), "   cp .env.example .env   # fill in your BlueBubbles password\n")
			fmt.Fprintf(cmd.OutOrStdout(), "   go run .\n")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8000, "webhook server port for the new bot")
	cmd.Flags().StringVar(&dir, "dir", "", "parent directory to create the bot in (default: current directory)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imessage-bot %s (commit %s, built %s)\n",
				buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	}
}
