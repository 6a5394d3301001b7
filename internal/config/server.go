package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muurk/evoconnect/internal/relay"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables the credentials are read from, shared with other
// Evolution API tooling.
const (
	EvolutionURLEnv   = "EVOLUTION_API_URL"
	EvolutionTokenEnv = "EVOLUTION_API_TOKEN"

	serverEnvPrefix  = "EVOCONNECT"
	serverConfigName = "evoconnect-server"
)

// Server holds the relay settings after merging flags, environment, the
// optional config file and defaults, in that order of precedence.
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log-level"`
	EvolutionURL    string        `mapstructure:"evolution-url"`
	EvolutionToken  string        `mapstructure:"evolution-token"`
	RateLimit       float64       `mapstructure:"rate-limit"`
	RateBurst       int           `mapstructure:"rate-burst"`
	RequestTimeout  time.Duration `mapstructure:"request-timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`

	// ConfigFile is the file that was read, empty when none was found
	ConfigFile string `mapstructure:"-"`
}

// RegisterServerFlags declares the relay flags on fs. Flag defaults are
// only used when the flag is passed explicitly; unset flags fall through
// to the environment and the config file.
func RegisterServerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file (default: ./evoconnect-server.yaml)")
	fs.String("host", "0.0.0.0", "Host to bind to")
	fs.Int("port", relay.DefaultPort, "Port to listen on")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("evolution-url", "", "Evolution API base URL (env "+EvolutionURLEnv+")")
	fs.String("evolution-token", "", "Evolution API global key (env "+EvolutionTokenEnv+")")
	fs.Float64("rate-limit", 0, "Requests per second allowed per client IP (0 disables)")
	fs.Int("rate-burst", 5, "Burst size for the per-client rate limit")
	fs.Duration("request-timeout", 30*time.Second, "Timeout for each Evolution API call")
	fs.Duration("shutdown-timeout", relay.DefaultShutdownTimeout, "Grace period for in-flight requests on shutdown")
}

// LoadServer builds the relay settings. fs may be nil.
func LoadServer(fs *pflag.FlagSet) (*Server, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", relay.DefaultPort)
	v.SetDefault("log-level", "info")
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("rate-burst", 5)
	v.SetDefault("request-timeout", 30*time.Second)
	v.SetDefault("shutdown-timeout", relay.DefaultShutdownTimeout)

	// EVOCONNECT_PORT, EVOCONNECT_LOG_LEVEL, ...
	v.SetEnvPrefix(serverEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("evolution-url", EvolutionURLEnv, serverEnvPrefix+"_EVOLUTION_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("evolution-token", EvolutionTokenEnv, serverEnvPrefix+"_EVOLUTION_TOKEN"); err != nil {
		return nil, err
	}

	explicitFile := ""
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
		if f := fs.Lookup("config"); f != nil {
			explicitFile = f.Value.String()
		}
	}

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.SetConfigName(serverConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/evoconnect")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for errors. Missing Evolution API
// credentials are not an error: the relay answers 500 until they are set.
func (s *Server) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate-limit must be non-negative")
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		return fmt.Errorf("rate-burst must be at least 1 when rate-limit is set")
	}
	if s.RequestTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	return nil
}

// RelayConfig converts the settings into the relay's configuration
func (s *Server) RelayConfig() *relay.Config {
	return &relay.Config{
		Host:            s.Host,
		Port:            s.Port,
		LogLevel:        s.LogLevel,
		EvolutionURL:    s.EvolutionURL,
		EvolutionToken:  s.EvolutionToken,
		RequestTimeout:  s.RequestTimeout,
		RateLimit:       s.RateLimit,
		RateBurst:       s.RateBurst,
		ShutdownTimeout: s.ShutdownTimeout,
	}
}
