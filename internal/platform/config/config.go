package config

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cmpbridge/internal/consent/regime"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/middleware/metadata"
)

// Server captures process level configuration.
type Server struct {
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For is
	// believed. Empty means clients are identified by connection address.
	TrustedProxies []string `yaml:"trusted_proxies"`
	Probe          Probe    `yaml:"probe"`
	Chrome         Chrome   `yaml:"chrome"`
}

// Probe configures consent probes.
type Probe struct {
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxFrameDepth int           `yaml:"max_frame_depth"`
	Regimes       []string      `yaml:"regimes"`
	// RequestsPerSecond throttles POST /v1/probes; zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Chrome configures the browser process.
type Chrome struct {
	Headless bool   `yaml:"headless"`
	ExecPath string `yaml:"exec_path"`
}

// Defaults returns the built-in configuration.
func Defaults() Server {
	return Server{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Probe: Probe{
			Timeout:           5 * time.Second,
			PollInterval:      250 * time.Millisecond,
			MaxFrameDepth:     10,
			Regimes:           regime.Names(),
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Chrome: Chrome{Headless: true},
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Unset or unparsable variables keep their defaults.
func FromEnv() Server {
	cfg := Defaults()
	if v := os.Getenv("CMPBRIDGE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CMPBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CMPBRIDGE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CMPBRIDGE_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}
	if d, ok := envDuration("CMPBRIDGE_PROBE_TIMEOUT"); ok {
		cfg.Probe.Timeout = d
	}
	if d, ok := envDuration("CMPBRIDGE_POLL_INTERVAL"); ok {
		cfg.Probe.PollInterval = d
	}
	if v, err := strconv.Atoi(os.Getenv("CMPBRIDGE_MAX_FRAME_DEPTH")); err == nil {
		cfg.Probe.MaxFrameDepth = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CMPBRIDGE_PROBE_RPS"), 64); err == nil {
		cfg.Probe.RequestsPerSecond = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CMPBRIDGE_CHROME_HEADLESS")); err == nil {
		cfg.Chrome.Headless = v
	}
	return cfg
}

func envDuration(key string) (time.Duration, bool) {
	d, err := time.ParseDuration(os.Getenv(key))
	return d, err == nil
}

// Load reads a YAML file over base. Only keys present in the file change.
//
// Errors: CodeInvalidInput when the file cannot be read or parsed.
func Load(path string, base Server) (Server, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, dErrors.Wrap(err, dErrors.CodeInvalidInput, "read config "+path)
	}
	cfg := base
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return base, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse config "+path)
	}
	return cfg, nil
}

// Validate rejects configurations no probe could run with.
func (s Server) Validate() error {
	switch {
	case s.Addr == "":
		return dErrors.New(dErrors.CodeInvalidInput, "addr is required")
	case s.Probe.Timeout <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "probe timeout must be positive")
	case s.Probe.PollInterval < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "poll interval must not be negative")
	case s.Probe.MaxFrameDepth <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "max frame depth must be positive")
	case s.Probe.RequestsPerSecond < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "requests per second must not be negative")
	}
	if _, err := s.Proxies(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "trusted_proxies")
	}
	for _, name := range s.Probe.Regimes {
		if _, ok := regime.Lookup(name); !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown regime "+name)
		}
	}
	return nil
}

// Proxies parses TrustedProxies.
func (s Server) Proxies() ([]netip.Prefix, error) {
	return metadata.ParseTrusted(s.TrustedProxies)
}
