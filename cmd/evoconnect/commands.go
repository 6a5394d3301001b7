package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/evoconnect/internal/config"
	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/relay"
	"github.com/muurk/evoconnect/internal/wizard"
	"github.com/muurk/evoconnect/internal/wizard/tui"
)

// Global flags
var (
	relayURL     string
	logLevel     string
	outputFormat string
)

// connect flags
var (
	instanceName   string
	phoneNumber    string
	saveQRPath     string
	qrRefresh      time.Duration
	connectTimeout time.Duration
)

const logFileName = "evoconnect.log"

func init() {
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "Relay base URL (default from config, then "+relay.DefaultRelayURL+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(qrcodeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

// loadSession reads preferences, applies --relay and returns a relay client
func loadSession() (*config.Preferences, *relay.Client, error) {
	prefs, err := config.LoadPreferences()
	if err != nil {
		return nil, nil, err
	}
	if relayURL != "" {
		if err := prefs.SetRelayURL(relayURL); err != nil {
			return nil, nil, err
		}
	}

	client := relay.NewClient(prefs.RelayURL)
	client.SetTimeout(prefs.RequestTimeout())
	return prefs, client, nil
}

// initLogging keeps line-oriented commands silent unless a level is given
func initLogging() error {
	if logLevel == "" {
		return logging.InitializeFromEnv()
	}
	return logging.InitializeWithOutput(logLevel, "stderr")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// wizardCmd launches the interactive TUI wizard
var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch interactive connection wizard",
	Long: `Launch the full-screen wizard.

The wizard walks through three steps:
- Enter an instance name and the phone number to link
- Scan the QR code from WhatsApp > Linked devices
- Confirmation once the phone is connected

This is the recommended way to connect a number for most users.`,
	Example: `  # Launch wizard against the default relay
  evoconnect wizard
  # Or simply (wizard is default):
  evoconnect

  # Use a remote relay
  evoconnect --relay https://relay.example.com`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the wizard needs an interactive terminal; use 'evoconnect connect' instead")
	}

	// Log lines would tear the full-screen UI, so they go to a file.
	logPath := os.Getenv(logging.LogFileEnvVar)
	if logPath == "" {
		dir, err := config.GetConfigDir()
		if err == nil && os.MkdirAll(dir, 0700) == nil {
			logPath = filepath.Join(dir, logFileName)
		} else {
			logPath = os.DevNull
		}
	}
	if err := logging.InitializeWithOutput(logLevel, logPath); err != nil {
		return err
	}

	prefs, client, err := loadSession()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	w := wizard.New(client, prefs.WizardOptions())
	defer func() { _ = w.Close() }()

	return tui.Run(ctx, w)
}

// connectCmd runs the wizard without the full-screen UI
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Create an instance and wait for the QR code to be scanned",
	Long: `Create an instance, print its QR code in the terminal and wait until
the phone is connected.

This is the non-interactive counterpart of the wizard, suitable for SSH
sessions and scripts. A fresh QR code is fetched and printed every
--qr-refresh, since WhatsApp codes expire after a short while. When
max_polls is set in the preferences the command gives up after that many
status checks. Press Ctrl+C to give up earlier.`,
	Example: `  # Connect a number
  evoconnect connect --name atendimento01 --phone 5511999999999

  # Also write the QR code image to a file
  evoconnect connect --name atendimento01 --phone 5511999999999 --save-qr qr.png

  # Give up after five minutes
  evoconnect connect --name atendimento01 --phone 5511999999999 --timeout 5m`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&instanceName, "name", "", "Instance name (letters and digits)")
	connectCmd.Flags().StringVar(&phoneNumber, "phone", "", "Phone number with country code, digits only")
	connectCmd.Flags().StringVar(&saveQRPath, "save-qr", "", "Write the current QR code image to this PNG file")
	connectCmd.Flags().DurationVar(&qrRefresh, "qr-refresh", defaultQRRefresh, "Fetch a new QR code this often (0 disables)")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 0, "Give up after this long (0 waits until interrupted)")
	_ = connectCmd.MarkFlagRequired("name")
	_ = connectCmd.MarkFlagRequired("phone")
}

func runConnect(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return err
	}

	prefs, client, err := loadSession()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	if connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}

	draft := instance.Draft{InstanceName: instanceName, PhoneNumber: phoneNumber}
	fmt.Printf("Creating instance %s via %s...\n", draft.InstanceName, prefs.RelayURL)

	err = connectInstance(ctx, client, draft, os.Stdout, connectOptions{
		Wizard:    prefs.WizardOptions(),
		QRRefresh: qrRefresh,
		SaveQR:    saveQRPath,
	})

	var createErr *wizard.CreateError
	if errors.As(err, &createErr) && relay.IsUnreachable(createErr.Err) {
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that evoconnect-server is running")
		fmt.Printf("  - Verify the relay URL (%s), or pass --relay\n", prefs.RelayURL)
	}

	switch {
	case createErr != nil:
		return errors.New(createErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("not connected after %s", connectTimeout)
	case errors.Is(err, context.Canceled):
		fmt.Println("\nCancelled.")
		return nil
	}
	return err
}

// Raw relay calls, for scripting and troubleshooting

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an instance and print the relay response",
	Example: `  evoconnect create --name atendimento01 --phone 5511999999999
  evoconnect create --name atendimento01 --phone 5511999999999 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		draft := instance.Draft{InstanceName: instanceName, PhoneNumber: phoneNumber}
		return callRelay(func(ctx context.Context, c *relay.Client) (*instance.Envelope, error) {
			return c.CreateInstance(ctx, draft)
		})
	},
}

var qrcodeCmd = &cobra.Command{
	Use:   "qrcode <instance>",
	Short: "Fetch a fresh QR code for an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callRelay(func(ctx context.Context, c *relay.Client) (*instance.Envelope, error) {
			return c.FetchQRCode(ctx, args[0])
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <instance>",
	Short: "Show the connection state of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callRelay(func(ctx context.Context, c *relay.Client) (*instance.Envelope, error) {
			return c.FetchStatus(ctx, args[0])
		})
	},
}

func init() {
	createCmd.Flags().StringVar(&instanceName, "name", "", "Instance name (letters and digits)")
	createCmd.Flags().StringVar(&phoneNumber, "phone", "", "Phone number with country code, digits only")

	for _, c := range []*cobra.Command{createCmd, qrcodeCmd, statusCmd} {
		c.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
	}
}

func callRelay(call func(context.Context, *relay.Client) (*instance.Envelope, error)) error {
	if err := initLogging(); err != nil {
		return err
	}

	_, client, err := loadSession()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	env, err := call(ctx, client)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(formatEnvelope(env))
	}

	if !env.Success {
		return fmt.Errorf("relay reported failure")
	}
	return nil
}

// formatEnvelope renders an envelope for humans. QR and state payloads are
// summarised; anything else is printed as indented JSON.
func formatEnvelope(env *instance.Envelope) string {
	var b strings.Builder
	if !env.Success {
		fmt.Fprintf(&b, "Failed: %s\n", env.Message)
		if len(env.Error) > 0 {
			fmt.Fprintf(&b, "Remote: %s\n", indentJSON(env.Error))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if state, err := instance.ParseConnectionState(env.Data); err == nil {
		fmt.Fprintf(&b, "State: %s", state)
		if instance.IsConnected(state) {
			b.WriteString(" (connected)")
		}
		return b.String()
	}

	if qr, err := instance.ParseQRCode(env.Data); err == nil && !qr.Empty() {
		if qr.Code != "" {
			if art, err := tui.RenderQRCode(qr.Code); err == nil {
				b.WriteString(art)
				b.WriteString("\n")
			}
		}
		if qr.PairingCode != "" {
			fmt.Fprintf(&b, "Pairing code: %s\n", qr.PairingCode)
		}
		if qr.Count > 0 {
			fmt.Fprintf(&b, "QR count: %d\n", qr.Count)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	return "OK\n" + indentJSON(env.Data)
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(data)
}

// configCmd manages wizard preferences
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change wizard preferences",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := config.LoadPreferences()
		if err != nil {
			return err
		}
		path, _ := config.GetConfigPath()
		fmt.Printf("File:            %s\n", path)
		fmt.Printf("Relay URL:       %s\n", prefs.RelayURL)
		fmt.Printf("Poll interval:   %s\n", prefs.PollInterval())
		if prefs.MaxPolls > 0 {
			fmt.Printf("Max polls:       %d\n", prefs.MaxPolls)
		} else {
			fmt.Println("Max polls:       unlimited")
		}
		fmt.Printf("Request timeout: %s\n", prefs.RequestTimeout())
		return nil
	},
}

var configSetRelayCmd = &cobra.Command{
	Use:     "set-relay <url>",
	Short:   "Set the relay URL used by default",
	Args:    cobra.ExactArgs(1),
	Example: `  evoconnect config set-relay https://relay.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := config.LoadPreferences()
		if err != nil {
			return err
		}
		if err := prefs.SetRelayURL(args[0]); err != nil {
			return err
		}
		if err := prefs.Save(); err != nil {
			return err
		}
		fmt.Printf("Relay URL set to %s\n", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the preferences file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetRelayCmd)
	configCmd.AddCommand(configPathCmd)
}
