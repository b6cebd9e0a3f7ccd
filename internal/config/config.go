package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// API stores delivery backend client settings.
type API struct {
	BaseURL string
	Timeout time.Duration
}

// Gateway stores retry behavior of the delivery gateway.
type Gateway struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Broadcast stores broadcast coordination settings.
type Broadcast struct {
	DefaultDuration  time.Duration
	MinFetchInterval time.Duration
	PollInterval     time.Duration
	SweepInterval    time.Duration
}

// Realtime stores realtime transport settings. An empty WSURL disables the
// websocket transport; empty brokers/topic/group disable the kafka one.
type Realtime struct {
	WSURL          string
	ReconnectDelay time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
}

// Session stores the client-side credential store location.
type Session struct {
	Path string
}

// Driver stores the initial driver position (updatable at runtime).
type Driver struct {
	Lat float64
	Lng float64
}

// RateLimit stores local HTTP rate limiter settings.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Config stores driver-agent settings.
type Config struct {
	Port      int
	API       API
	Gateway   Gateway
	Broadcast Broadcast
	Realtime  Realtime
	Session   Session
	Driver    Driver
	RateLimit RateLimit
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:      DefaultPort(),
		API:       DefaultAPI(),
		Gateway:   DefaultGateway(),
		Broadcast: DefaultBroadcast(),
		Realtime:  DefaultRealtime(),
		Session:   DefaultSession(),
		RateLimit: DefaultRateLimit(),
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "local dashboard port")
	pflag.StringVar(&cfg.API.BaseURL, "api-base-url", cfg.API.BaseURL, "delivery backend base URL")
	pflag.StringVar(&cfg.Session.Path, "session-file", cfg.Session.Path, "path to the session credential file")
	pflag.Float64Var(&cfg.Driver.Lat, "lat", cfg.Driver.Lat, "initial driver latitude")
	pflag.Float64Var(&cfg.Driver.Lng, "lng", cfg.Driver.Lng, "initial driver longitude")
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return err
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if cfg.API.Timeout, err = envDuration("API_TIMEOUT", cfg.API.Timeout); err != nil {
		return err
	}

	if cfg.Gateway.MaxAttempts, err = envInt("GATEWAY_MAX_ATTEMPTS", cfg.Gateway.MaxAttempts); err != nil {
		return err
	}
	if cfg.Gateway.BaseDelay, err = envDuration("GATEWAY_BASE_DELAY", cfg.Gateway.BaseDelay); err != nil {
		return err
	}
	if cfg.Gateway.MaxDelay, err = envDuration("GATEWAY_MAX_DELAY", cfg.Gateway.MaxDelay); err != nil {
		return err
	}

	if cfg.Broadcast.DefaultDuration, err = envDuration("BROADCAST_DEFAULT_DURATION", cfg.Broadcast.DefaultDuration); err != nil {
		return err
	}
	if cfg.Broadcast.MinFetchInterval, err = envDuration("BROADCAST_MIN_FETCH_INTERVAL", cfg.Broadcast.MinFetchInterval); err != nil {
		return err
	}
	if cfg.Broadcast.PollInterval, err = envDuration("POLL_INTERVAL", cfg.Broadcast.PollInterval); err != nil {
		return err
	}
	if cfg.Broadcast.SweepInterval, err = envDuration("SWEEP_INTERVAL", cfg.Broadcast.SweepInterval); err != nil {
		return err
	}

	if v := os.Getenv("WS_URL"); v != "" {
		cfg.Realtime.WSURL = v
	}
	if cfg.Realtime.ReconnectDelay, err = envDuration("WS_RECONNECT_DELAY", cfg.Realtime.ReconnectDelay); err != nil {
		return err
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Realtime.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Realtime.KafkaTopic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.Realtime.KafkaGroupID = v
	}

	if v := os.Getenv("SESSION_FILE"); v != "" {
		cfg.Session.Path = v
	}

	if cfg.Driver.Lat, err = envFloat("DRIVER_LAT", cfg.Driver.Lat); err != nil {
		return err
	}
	if cfg.Driver.Lng, err = envFloat("DRIVER_LNG", cfg.Driver.Lng); err != nil {
		return err
	}

	if cfg.RateLimit.Enabled, err = envBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled); err != nil {
		return err
	}
	if cfg.RateLimit.Rate, err = envFloat("RATE_LIMIT_RATE", cfg.RateLimit.Rate); err != nil {
		return err
	}
	if cfg.RateLimit.Burst, err = envInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst); err != nil {
		return err
	}
	if cfg.RateLimit.TTL, err = envDuration("RATE_LIMIT_TTL", cfg.RateLimit.TTL); err != nil {
		return err
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if _, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil {
		return fmt.Errorf("invalid API_BASE_URL %q: %w", cfg.API.BaseURL, err)
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("invalid API_TIMEOUT: %s", cfg.API.Timeout)
	}
	if cfg.Gateway.MaxAttempts <= 0 {
		return fmt.Errorf("invalid GATEWAY_MAX_ATTEMPTS: %d", cfg.Gateway.MaxAttempts)
	}
	if cfg.Broadcast.SweepInterval <= 0 || cfg.Broadcast.PollInterval <= 0 {
		return fmt.Errorf("broadcast intervals must be positive")
	}
	if cfg.Broadcast.DefaultDuration <= 0 {
		return fmt.Errorf("invalid BROADCAST_DEFAULT_DURATION: %s", cfg.Broadcast.DefaultDuration)
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
