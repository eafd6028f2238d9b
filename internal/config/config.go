package config

import "time"

// Config holds client configuration values.
type Config struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	WSURL          string        `mapstructure:"ws_url" yaml:"ws_url"`
	Token          string        `mapstructure:"token" yaml:"token"`
	TokenKey       string        `mapstructure:"token_key" yaml:"token_key"`
	CacheBackend   string        `mapstructure:"cache_backend" yaml:"cache_backend"`
	CachePath      string        `mapstructure:"cache_path" yaml:"cache_path"`
	RedisAddr      string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db" yaml:"redis_db"`
	PageSize       int           `mapstructure:"page_size" yaml:"page_size"`
	TypingDebounce time.Duration `mapstructure:"typing_debounce" yaml:"typing_debounce"`
	TypingTTL      time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MetricsAddr    string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:      "http://localhost:8080/api/chat",
		WSURL:          "ws://localhost:8080/ws/chat",
		TokenKey:       "session_token",
		CacheBackend:   "sqlite",
		CachePath:      "examchat.db",
		PageSize:       50,
		TypingDebounce: 2 * time.Second,
		TypingTTL:      3 * time.Second,
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.TokenKey != "" {
		c.TokenKey = other.TokenKey
	}
	if other.CacheBackend != "" {
		c.CacheBackend = other.CacheBackend
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.RedisPassword != "" {
		c.RedisPassword = other.RedisPassword
	}
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	if other.PageSize != 0 {
		c.PageSize = other.PageSize
	}
	if other.TypingDebounce != 0 {
		c.TypingDebounce = other.TypingDebounce
	}
	if other.TypingTTL != 0 {
		c.TypingTTL = other.TypingTTL
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
