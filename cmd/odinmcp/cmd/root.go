// Package cmd provides the CLI commands for odinmcp.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theNullP0inter/odinmcp/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "odinmcp",
	Short: "OdinMCP - multi-tenant MCP server",
	Long: `OdinMCP is a horizontally scalable server implementation of the
Model Context Protocol. The HTTP tier stays stateless: long-lived
server-to-client streams are held open by the Hermod push proxy, and
handler execution happens on a worker plane coordinated through a broker.

Quick start:
  1. Create a config file: odinmcp.yaml
  2. Start the web tier:    odinmcp serve
  3. Start the worker tier: odinmcp work

Configuration:
  Config is loaded from odinmcp.yaml in the current directory,
  $HOME/.odinmcp/, or /etc/odinmcp/.

  Environment variables can override config values with the ODINMCP_ prefix.
  Example: ODINMCP_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the HTTP frontend
  work        Start the worker runtime
  version     Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./odinmcp.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
