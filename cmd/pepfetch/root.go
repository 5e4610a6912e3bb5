package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pepfetch.
// Running it without a subcommand performs a fetch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pepfetch [PEP numbers...]",
		Short: "Download Python Enhancement Proposals as plain text",
		Long: `pepfetch downloads every PEP listed in the python.org PEP index,
extracts the rendered body of each document and writes it to
downloaded_peps/pep-NNNN.txt.

Running pepfetch without a subcommand is the same as "pepfetch fetch".
Failed PEPs are reported but never abort the batch.`,
		Version:       getVersion(),
		Args:          cobra.ArbitraryArgs,
		RunE:          runFetchCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	addFetchFlags(cmd)

	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
