package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"huddle-client/pkg/constants"
)

// Config holds all configuration for the realtime client
type Config struct {
	Gateway GatewayConfig
	Socket  SocketConfig
	Call    CallConfig
	Typing  TypingConfig
	Unread  UnreadConfig
	Daemon  DaemonConfig
	Log     LogConfig
}

// GatewayConfig holds REST gateway configuration
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SocketConfig holds persistent channel configuration
type SocketConfig struct {
	URL            string
	ReconnectDelay time.Duration
	SendBufferSize int
	PingInterval   time.Duration
}

// CallConfig holds call coordinator configuration
type CallConfig struct {
	RingTimeout time.Duration
}

// TypingConfig holds typing presence configuration
type TypingConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// UnreadConfig holds unread aggregation configuration
type UnreadConfig struct {
	PollInterval    time.Duration
	IncludeArchived bool
}

// DaemonConfig holds daemon configuration
type DaemonConfig struct {
	Port        int
	Environment string // development, staging, production
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Gateway: GatewayConfig{
			BaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:8080/v1"),
			Timeout: getEnvAsDuration("GATEWAY_TIMEOUT", constants.GatewayTimeout),
		},
		Socket: SocketConfig{
			URL:            getEnv("SOCKET_URL", "ws://localhost:8080/v1/realtime"),
			ReconnectDelay: getEnvAsDuration("SOCKET_RECONNECT_DELAY", constants.ReconnectDelay),
			SendBufferSize: getEnvAsInt("SOCKET_SEND_BUFFER", constants.SendBufferSize),
			PingInterval:   getEnvAsDuration("SOCKET_PING_INTERVAL", constants.WebSocketPingInterval),
		},
		Call: CallConfig{
			RingTimeout: getEnvAsDuration("CALL_RING_TIMEOUT", constants.RingTimeout),
		},
		Typing: TypingConfig{
			TTL:           getEnvAsDuration("TYPING_TTL", constants.TypingTTL),
			SweepInterval: getEnvAsDuration("TYPING_SWEEP_INTERVAL", constants.TypingSweepInterval),
		},
		Unread: UnreadConfig{
			PollInterval:    getEnvAsDuration("UNREAD_POLL_INTERVAL", constants.UnreadPollInterval),
			IncludeArchived: getEnvAsBool("UNREAD_INCLUDE_ARCHIVED", false),
		},
		Daemon: DaemonConfig{
			Port:        getEnvAsInt("PORT", 8090),
			Environment: getEnv("ENV", "development"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "json"),
			Output:   getEnv("LOG_OUTPUT", "stdout"),
			FilePath: getEnv("LOG_FILE_PATH", "/logs/app.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL must not be empty")
	}
	if c.Socket.URL == "" {
		return fmt.Errorf("SOCKET_URL must not be empty")
	}
	if c.Socket.ReconnectDelay <= 0 {
		return fmt.Errorf("SOCKET_RECONNECT_DELAY must be positive")
	}
	if c.Socket.SendBufferSize < 0 {
		return fmt.Errorf("SOCKET_SEND_BUFFER must not be negative")
	}
	if c.Call.RingTimeout <= 0 {
		return fmt.Errorf("CALL_RING_TIMEOUT must be positive")
	}
	if c.Typing.TTL <= 0 || c.Typing.SweepInterval <= 0 {
		return fmt.Errorf("typing TTL and sweep interval must be positive")
	}
	if c.Unread.PollInterval <= 0 {
		return fmt.Errorf("UNREAD_POLL_INTERVAL must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
