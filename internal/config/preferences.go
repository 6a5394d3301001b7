package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/muurk/evoconnect/internal/relay"
	"github.com/muurk/evoconnect/internal/wizard"
	"gopkg.in/yaml.v3"
)

const (
	appName           = "evoconnect"
	configFile        = "config.yaml"
	preferencesFormat = 1
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// Preferences are the wizard's user settings. Instance names, numbers and
// QR material are never written here.
type Preferences struct {
	Version               int    `yaml:"version"`
	RelayURL              string `yaml:"relay_url"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	MaxPolls              int    `yaml:"max_polls"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// NewPreferences returns the defaults used when no file exists.
func NewPreferences() *Preferences {
	return &Preferences{
		Version:               preferencesFormat,
		RelayURL:              relay.DefaultRelayURL,
		PollIntervalSeconds:   int(wizard.DefaultPollInterval / time.Second),
		MaxPolls:              0,
		RequestTimeoutSeconds: int(relay.DefaultClientTimeout / time.Second),
	}
}

// PollInterval returns the status check interval
func (p *Preferences) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the timeout for one relay call
func (p *Preferences) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// WizardOptions maps the preferences onto wizard options
func (p *Preferences) WizardOptions() wizard.Options {
	return wizard.Options{
		PollInterval: p.PollInterval(),
		MaxPolls:     p.MaxPolls,
	}
}

// SetRelayURL validates and stores the relay base URL
func (p *Preferences) SetRelayURL(raw string) error {
	if err := validateRelayURL(raw); err != nil {
		return err
	}
	p.RelayURL = raw
	return nil
}

// Validate checks preference values for errors
func (p *Preferences) Validate() error {
	if p.Version != preferencesFormat {
		return fmt.Errorf("unsupported config version: %d (expected %d)", p.Version, preferencesFormat)
	}
	if err := validateRelayURL(p.RelayURL); err != nil {
		return err
	}
	if p.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1")
	}
	if p.MaxPolls < 0 {
		return fmt.Errorf("max_polls must be non-negative")
	}
	if p.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be at least 1")
	}
	return nil
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid relay URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid relay URL %q: missing host", raw)
	}
	return nil
}

// GetConfigDir returns the OS-appropriate configuration directory for the application.
//   - Linux: $XDG_CONFIG_HOME/evoconnect or $HOME/.config/evoconnect
//   - macOS: $HOME/.config/evoconnect
//   - Windows: %LOCALAPPDATA%\evoconnect
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the preferences file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// LoadPreferences reads the preferences file, or returns defaults when it
// does not exist.
func LoadPreferences() (*Preferences, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadPreferencesFrom(path)
}

// LoadPreferencesFrom reads preferences from path. Keys missing from the
// file keep their default values.
func LoadPreferencesFrom(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewPreferences(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	prefs := NewPreferences()
	if err := yaml.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return prefs, nil
}

// Save writes the preferences to the default location.
func (p *Preferences) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return p.SaveTo(path)
}

// SaveTo writes the preferences to path. The write is atomic (temp file and
// rename) so a crash never leaves a truncated file.
func (p *Preferences) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := p.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Evolution Connect preferences
# The Evolution API key lives on the relay, never in this file.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
