// Command ronkey serves Monkey REPL sessions over WebSocket and ships a
// terminal client for them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ronkey",
	Short: "Monkey REPL over WebSocket",
	Long: `Ronkey evaluates Monkey source fragments sent over a WebSocket.

Every connection is its own REPL session: bindings made by one message are
visible to the next message on the same connection and to no other.

Use 'ronkey serve' to start the server and 'ronkey repl' to talk to it.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON, defaults to the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error, none)")
}
