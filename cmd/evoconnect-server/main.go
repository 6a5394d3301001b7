// Evoconnect-server is the relay between the connection wizard and an
// Evolution API server.
//
// It holds the Evolution API key so the wizard never sees it, forwards
// instance creation, QR code and connection state requests, and wraps every
// answer in a {success, data, message, error} envelope.
//
// Usage:
//
//	evoconnect-server server [flags]
//
// See 'evoconnect-server server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/evoconnect/internal/config"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/relay"
	"github.com/muurk/evoconnect/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "evoconnect-server",
	Short: "Evolution API relay for evoconnect",
	Long: `A small HTTP relay between the evoconnect wizard and an Evolution API server.

The relay keeps the Evolution API global key server-side and exposes three
endpoints to the wizard:

  POST /api/instance/create
  GET  /api/instance/{instanceName}/qrcode
  GET  /api/instance/{instanceName}/status

It also serves /healthz and Prometheus metrics on /metrics.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the relay",
	Long: `Start the relay and serve until SIGINT or SIGTERM.

Settings come from flags, then EVOCONNECT_* environment variables, then an
optional evoconnect-server.yaml, then defaults. The Evolution API URL and key
are also read from EVOLUTION_API_URL and EVOLUTION_API_TOKEN.

Without Evolution API credentials the relay still starts, and answers
instance requests with "Evolution API configuration not found".`,
	Example: `  # Credentials from the environment
  EVOLUTION_API_URL=https://evo.example.com EVOLUTION_API_TOKEN=... evoconnect-server server

  # Custom port with debug logging
  evoconnect-server server --port 8080 --log-level debug

  # Limit each client to 2 requests per second
  evoconnect-server server --rate-limit 2 --rate-burst 5

  # Read settings from a file
  evoconnect-server server --config /etc/evoconnect/evoconnect-server.yaml`,
	RunE: runServer,
}

func init() {
	config.RegisterServerFlags(serverCmd.Flags())
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer(cmd.Flags())
	if err != nil {
		return err
	}

	srv, err := relay.New(cfg.RelayConfig())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.ConfigFile != "" {
		logging.Info("Loaded config file", zap.String("path", cfg.ConfigFile))
	}

	return srv.Start()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evoconnect-server %s\n", version.Full())
	},
}
