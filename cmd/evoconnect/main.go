// Evoconnect links a WhatsApp number to an Evolution API instance.
//
// It talks to an evoconnect-server relay, which holds the Evolution API
// key. The interactive wizard collects an instance name and phone number,
// shows the pairing QR code and waits until the phone has scanned it.
//
// Usage:
//
//	evoconnect [command] [flags]
//
// Running without arguments launches the interactive wizard.
// See 'evoconnect --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/evoconnect/internal/logging"
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
	Use:   "evoconnect",
	Short: "WhatsApp connection wizard for Evolution API",
	Long: `Connect a WhatsApp number to an Evolution API instance.

The wizard creates the instance through an evoconnect-server relay, shows
the QR code to scan from WhatsApp > Linked devices and waits until the
phone is connected.

If no command is specified, the interactive wizard will launch automatically.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWizard(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evoconnect %s\n", version.Full())
	},
}
