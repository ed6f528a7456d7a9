package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mpaland/chan-sccp/internal/call"
	"github.com/mpaland/chan-sccp/internal/codec"
)

// Config holds all runtime configuration for the SCCP gateway.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	BindAddr   string // station listener bind address
	SCCPPort   int    // station TCP listen port
	HTTPPort   int    // management API / metrics port
	RTPPortMin int
	RTPPortMax int

	ExternalHost    string // public address (or DNS name) for NAT media rewriting
	ExternalRefresh time.Duration

	FirstDigitTimeout   time.Duration
	TransferNotifyDelay time.Duration
	BlindTransferMOH    bool // play music-on-hold instead of ringback during blind transfer
	TransferTone        bool
	RTPTimeout          time.Duration

	CodecPreference string // comma-separated, most preferred first
	RTPTOS          int
	RTPCoS          int

	LogLevel  string
	LogFormat string // "text" or "json"
}

// defaults
const (
	defaultSCCPPort            = 2000
	defaultHTTPPort            = 8080
	defaultRTPPortMin          = 10000
	defaultRTPPortMax          = 20000
	defaultFirstDigitTimeout   = 16 * time.Second
	defaultTransferNotifyDelay = time.Second
	defaultRTPTimeout          = 10 * time.Second
	defaultExternalRefresh     = time.Minute
	defaultRTPTOS              = 0xB8 // DSCP EF
	defaultRTPCoS              = 6
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
)

// envPrefix is the prefix for all gateway environment variables.
const envPrefix = "SCCP_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("sccpd", flag.ContinueOnError)

	fs.StringVar(&cfg.BindAddr, "bind-addr", "", "station listener bind address (all interfaces if empty)")
	fs.IntVar(&cfg.SCCPPort, "sccp-port", defaultSCCPPort, "station TCP listen port")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "management API and metrics listen port")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum UDP port for station media")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum UDP port for station media")
	fs.StringVar(&cfg.ExternalHost, "external-host", "", "public address or DNS name substituted for NAT stations")
	fs.DurationVar(&cfg.ExternalRefresh, "external-refresh", defaultExternalRefresh, "re-resolution interval for a DNS external-host")
	fs.DurationVar(&cfg.FirstDigitTimeout, "first-digit-timeout", defaultFirstDigitTimeout, "wait for the first dialed digit on a new call")
	fs.DurationVar(&cfg.TransferNotifyDelay, "transfer-notify-delay", defaultTransferNotifyDelay, "delay before the secondary blind-transfer notification")
	fs.BoolVar(&cfg.BlindTransferMOH, "blind-transfer-moh", false, "play hold music instead of ringback to a blind-transferred party")
	fs.BoolVar(&cfg.TransferTone, "transfer-tone", true, "play a confirmation tone to a station receiving a transferred call")
	fs.DurationVar(&cfg.RTPTimeout, "rtp-timeout", defaultRTPTimeout, "station-side RTP inactivity timeout")
	fs.StringVar(&cfg.CodecPreference, "codec-preference", "", "comma-separated codec preference, most preferred first (e.g. ulaw,alaw,g729a)")
	fs.IntVar(&cfg.RTPTOS, "rtp-tos", defaultRTPTOS, "IP TOS byte for outbound media")
	fs.IntVar(&cfg.RTPCoS, "rtp-cos", defaultRTPCoS, "802.1p CoS for outbound media")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"bind-addr":             envPrefix + "BIND_ADDR",
		"sccp-port":             envPrefix + "PORT",
		"http-port":             envPrefix + "HTTP_PORT",
		"rtp-port-min":          envPrefix + "RTP_PORT_MIN",
		"rtp-port-max":          envPrefix + "RTP_PORT_MAX",
		"external-host":         envPrefix + "EXTERNAL_HOST",
		"external-refresh":      envPrefix + "EXTERNAL_REFRESH",
		"first-digit-timeout":   envPrefix + "FIRST_DIGIT_TIMEOUT",
		"transfer-notify-delay": envPrefix + "TRANSFER_NOTIFY_DELAY",
		"blind-transfer-moh":    envPrefix + "BLIND_TRANSFER_MOH",
		"transfer-tone":         envPrefix + "TRANSFER_TONE",
		"rtp-timeout":           envPrefix + "RTP_TIMEOUT",
		"codec-preference":      envPrefix + "CODEC_PREFERENCE",
		"rtp-tos":               envPrefix + "RTP_TOS",
		"rtp-cos":               envPrefix + "RTP_COS",
		"log-level":             envPrefix + "LOG_LEVEL",
		"log-format":            envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "bind-addr":
			cfg.BindAddr = val
		case "sccp-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SCCPPort = v
			}
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "external-host":
			cfg.ExternalHost = val
		case "external-refresh":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.ExternalRefresh = v
			}
		case "first-digit-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.FirstDigitTimeout = v
			}
		case "transfer-notify-delay":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.TransferNotifyDelay = v
			}
		case "blind-transfer-moh":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.BlindTransferMOH = v
			}
		case "transfer-tone":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.TransferTone = v
			}
		case "rtp-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.RTPTimeout = v
			}
		case "codec-preference":
			cfg.CodecPreference = val
		case "rtp-tos":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPTOS = v
			}
		case "rtp-cos":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPCoS = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.SCCPPort < 1 || c.SCCPPort > 65535 {
		return fmt.Errorf("sccp-port must be between 1 and 65535, got %d", c.SCCPPort)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	// RTP ports must be even (RTP uses even ports, RTCP the next odd port).
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}
	if c.BindAddr != "" {
		if net.ParseIP(c.BindAddr) == nil {
			return fmt.Errorf("bind-addr must be an IP address, got %q", c.BindAddr)
		}
	}
	if c.FirstDigitTimeout <= 0 {
		return fmt.Errorf("first-digit-timeout must be positive, got %s", c.FirstDigitTimeout)
	}
	if c.RTPTOS < 0 || c.RTPTOS > 255 {
		return fmt.Errorf("rtp-tos must be between 0 and 255, got %d", c.RTPTOS)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// CallSettings converts the configuration into call-control tunables.
func (c *Config) CallSettings() call.Settings {
	s := call.Settings{
		FirstDigitTimeout:   c.FirstDigitTimeout,
		TransferNotifyDelay: c.TransferNotifyDelay,
		RTPTimeoutSec:       int(c.RTPTimeout / time.Second),
	}
	if c.BlindTransferMOH {
		s.BlindTransferIndication = call.BlindTransferMusicOnHold
	}
	if c.TransferTone {
		s.TransferTone = call.ToneZipZip
	}
	return s
}

// CodecPrefs parses the configured codec preference list; empty means the
// process default order.
func (c *Config) CodecPrefs() codec.Preference {
	if c.CodecPreference == "" {
		return nil
	}
	return codec.Parse(c.CodecPreference)
}

// SlogHandler returns a slog.Handler configured with the appropriate
// format (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
