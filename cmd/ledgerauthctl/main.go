// Command ledgerauthctl is the operator CLI for a ledgernoded
// deployment: generating the node's identity key, maintaining its
// peer roster, and triggering remote key rotation through the
// endpoint's admin hook.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerauthctl",
	Short: "Operator CLI for the ledgernode Client Authentication Endpoint",
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerauthctl: %v\n", err)
		os.Exit(1)
	}
}
