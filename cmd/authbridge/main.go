// Command authbridge serves the session-token gateway over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// BuildVersion is set at link time.
var BuildVersion = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authbridge",
		Short:         "Session tokens for federated logins",
		Long:          "authbridge exchanges identity provider credentials for locally signed session tokens and manages their lifecycle.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMintCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print the version number of authbridge",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "authbridge:", err)
		os.Exit(1)
	}
}
