package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = 31234
	defaultScriptName = "install.sh"
)

// Config represents the server configuration. It is resolved once at startup
// and never mutated afterwards.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Script struct {
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"script"`

	RateLimit struct {
		RequestsPerSecond int `yaml:"requests_per_second"`
		Burst             int `yaml:"burst"`
	} `yaml:"rate_limit"`

	WAF struct {
		Enabled         bool   `yaml:"enabled"`
		CustomRulesPath string `yaml:"custom_rules_path"`
	} `yaml:"waf"`

	Debug struct {
		PprofListen string `yaml:"pprof_listen"`
	} `yaml:"debug"`
}

func defaultConfig() Config {
	var config Config
	config.Server.Port = defaultPort
	config.Script.Path = defaultScriptName
	config.Script.Watch = true
	return config
}

// loadConfig loads the configuration from the specified file on top of the
// defaults. An empty path yields the defaults.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("error reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing config file: %w", err)
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return config, fmt.Errorf("invalid server.port %d", config.Server.Port)
	}
	if config.RateLimit.RequestsPerSecond < 0 || config.RateLimit.Burst < 0 {
		return config, errors.New("rate_limit values must not be negative")
	}
	if (config.RateLimit.RequestsPerSecond == 0) != (config.RateLimit.Burst == 0) {
		return config, errors.New("rate_limit requests_per_second and burst must both be set or both be zero")
	}
	if config.Script.Path == "" {
		config.Script.Path = defaultScriptName
	}

	return config, nil
}

// resolvePort applies the PORT environment variable over the configured port.
// A value that is not a valid port number is ignored with a warning.
func resolvePort(config *Config, getenv func(string) string, logger *slog.Logger) {
	raw := getenv("PORT")
	if raw == "" {
		return
	}

	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		logger.Warn("config.port_invalid", "value", raw, "using", config.Server.Port)
		return
	}
	config.Server.Port = port
}

// resolveScriptPath anchors a relative script path to baseDir, the directory
// holding the running executable.
func resolveScriptPath(config *Config, baseDir string) {
	if !filepath.IsAbs(config.Script.Path) {
		config.Script.Path = filepath.Join(baseDir, config.Script.Path)
	}
	config.Script.Path = filepath.Clean(config.Script.Path)
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("error locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func (c Config) listenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
