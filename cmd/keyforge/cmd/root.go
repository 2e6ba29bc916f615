// Package cmd provides the CLI commands for keyforge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyforge/keyforge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "keyforge",
	Short: "keyforge - API key issuance and validation service",
	Long: `keyforge mints, validates, and revokes opaque bearer API keys backed
by Redis, with Argon2id-verified secrets and per-key rate limiting.

Configuration is loaded from keyforge.yaml in the current directory,
$HOME/.keyforge/, or /etc/keyforge/.

Environment variables override config values with the KEYFORGE_ prefix.
Example: KEYFORGE_SERVER_PORT=9090

Commands:
  serve            Start the HTTP server
  mint             Mint a new API key
  revoke           Revoke an API key
  create-project   Create a project
  version          Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./keyforge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
