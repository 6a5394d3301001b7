// Package config loads settings for both binaries.
//
// # Relay
//
// LoadServer merges, from highest to lowest precedence: command-line
// flags, environment variables, an optional evoconnect-server.yaml (in the
// working directory or /etc/evoconnect, or the file given by --config) and
// built-in defaults. Environment variables use the EVOCONNECT_ prefix
// (EVOCONNECT_PORT, EVOCONNECT_RATE_LIMIT, ...). The Evolution API
// credentials are also read from EVOLUTION_API_URL and EVOLUTION_API_TOKEN.
//
//	host: 0.0.0.0
//	port: 5000
//	log-level: info
//	evolution-url: https://evo.example.com
//	rate-limit: 2
//	rate-burst: 5
//	request-timeout: 30s
//
// # Wizard preferences
//
// The wizard keeps a small YAML file in the platform configuration
// directory:
//   - Linux: $XDG_CONFIG_HOME/evoconnect/config.yaml or $HOME/.config/evoconnect/config.yaml
//   - macOS: $HOME/.config/evoconnect/config.yaml
//   - Windows: %LOCALAPPDATA%\evoconnect\config.yaml
//
//	version: 1
//	relay_url: http://localhost:5000
//	poll_interval_seconds: 3
//	max_polls: 0
//	request_timeout_seconds: 30
//
// Only connection preferences are stored. Instance names, phone numbers,
// QR codes and the Evolution API key are never written.
package config
