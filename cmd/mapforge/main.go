package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mapforge",
		Short: "Shared virtual tabletop server and tools",
		Long: `Mapforge hosts a shared virtual tabletop session.

A server owns the campaign state and relays every change to the
connected players in real time. Tokens, drawings, fog of war and
chat replicate across all clients; map images and other assets are
content-addressed and distributed on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
