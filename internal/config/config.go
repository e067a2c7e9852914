// Package config loads the server configuration from environment variables
// with a small set of flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dropbeam/dropbeam/internal/origin"
)

const (
	envVarListenAddr      = "DROPBEAM_LISTEN_ADDR"
	envVarMode            = "DROPBEAM_MODE"
	envVarLogFormat       = "DROPBEAM_LOG_FORMAT"
	envVarLogLevel        = "DROPBEAM_LOG_LEVEL"
	envVarShutdownTimeout = "DROPBEAM_SHUTDOWN_TIMEOUT"

	envVarHeartbeatInterval  = "DROPBEAM_HEARTBEAT_INTERVAL"
	envVarMaxFrameBytes      = "DROPBEAM_MAX_FRAME_BYTES"
	envVarMaxFramesPerSecond = "DROPBEAM_MAX_FRAMES_PER_SECOND"
	envVarAllowedOrigins     = "DROPBEAM_ALLOWED_ORIGINS"
	envVarTrustProxy         = "DROPBEAM_TRUST_PROXY"
	envVarSecureCookies      = "DROPBEAM_SECURE_COOKIES"

	envVarTURNRESTSharedSecret   = "DROPBEAM_TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "DROPBEAM_TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "DROPBEAM_TURN_REST_USERNAME_PREFIX"
)

const (
	DefaultListenAddr              = ":3000"
	DefaultShutdown                = 15 * time.Second
	DefaultHeartbeatInterval       = 60 * time.Second
	DefaultMaxFrameBytes           = int64(64 * 1024)
	DefaultMaxFramesPerSecond      = 50
	DefaultMode               Mode = ModeDev

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "dropbeam"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	HeartbeatInterval  time.Duration
	MaxFrameBytes      int64
	MaxFramesPerSecond int
	AllowedOrigins     []string
	TrustProxy         bool
	SecureCookies      bool

	ICEServers []webrtc.ICEServer

	TURNRESTSharedSecret   string
	TURNRESTTTLSeconds     int64
	TURNRESTUsernamePrefix string
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	mode, err := parseMode(envOrDefault(lookup, envVarMode, string(DefaultMode)))
	if err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode)))
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode)))
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	heartbeatInterval, err := envDurationOrDefault(lookup, envVarHeartbeatInterval, DefaultHeartbeatInterval)
	if err != nil {
		return Config{}, err
	}
	if heartbeatInterval <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarHeartbeatInterval)
	}

	maxFrameBytes, err := envInt64OrDefault(lookup, envVarMaxFrameBytes, DefaultMaxFrameBytes)
	if err != nil {
		return Config{}, err
	}
	if maxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxFrameBytes)
	}
	maxFramesPerSecond, err := envIntOrDefault(lookup, envVarMaxFramesPerSecond, DefaultMaxFramesPerSecond)
	if err != nil {
		return Config{}, err
	}
	if maxFramesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxFramesPerSecond)
	}

	allowedOrigins, err := parseAllowedOrigins(envOrDefault(lookup, envVarAllowedOrigins, ""))
	if err != nil {
		return Config{}, err
	}

	trustProxy, err := envBoolOrDefault(lookup, envVarTrustProxy, false)
	if err != nil {
		return Config{}, err
	}
	secureCookies, err := envBoolOrDefault(lookup, envVarSecureCookies, mode == ModeProd)
	if err != nil {
		return Config{}, err
	}

	iceServers, err := parseICEServersFromEnv(lookup)
	if err != nil {
		return Config{}, err
	}

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds, err := envInt64OrDefault(lookup, envVarTURNRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)

	cfg := Config{
		ListenAddr:      envOrDefault(lookup, envVarListenAddr, DefaultListenAddr),
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,

		HeartbeatInterval:  heartbeatInterval,
		MaxFrameBytes:      maxFrameBytes,
		MaxFramesPerSecond: maxFramesPerSecond,
		AllowedOrigins:     allowedOrigins,
		TrustProxy:         trustProxy,
		SecureCookies:      secureCookies,

		ICEServers: iceServers,

		TURNRESTSharedSecret:   turnRESTSharedSecret,
		TURNRESTTTLSeconds:     turnRESTTTLSeconds,
		TURNRESTUsernamePrefix: turnRESTUsernamePrefix,
	}

	fs := flag.NewFlagSet("dropbeam", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "TCP address to listen on")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NewLogger constructs the process logger from the loaded configuration.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected dev or prod)", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected text or json)", envVarLogFormat, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid %s %q (expected debug, info, warn, error)", envVarLogLevel, raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q", envVarAllowedOrigins, entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
