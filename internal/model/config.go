package model

import "time"

// Config is the complete trialmatch configuration.
// Field tags serve both yaml.v3 (config init/show) and viper (mapstructure).
type Config struct {
	Parser       ParserConfig      `yaml:"parser" mapstructure:"parser"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Match        MatchConfig       `yaml:"match" mapstructure:"match"`
	Gate         GateConfig        `yaml:"gate" mapstructure:"gate"`
	Store        StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
	Log          LogConfig         `yaml:"log" mapstructure:"log"`
}

// ParserConfig selects the parser backend used for new trials
type ParserConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // pattern, openai, anthropic, ollama
}

// LLMConfig configures model-assisted parsing
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	HTTPProxy      string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// MatchConfig holds tier aggregation policy
type MatchConfig struct {
	// UnknownThreshold is the share of UNKNOWN verdicts above which the tier
	// becomes INSUFFICIENT_DATA
	UnknownThreshold float64 `yaml:"unknown_threshold" mapstructure:"unknown_threshold"`

	// CentralFields are inclusion fields whose UNKNOWN verdict alone yields INSUFFICIENT_DATA
	CentralFields []string `yaml:"central_fields" mapstructure:"central_fields"`
}

// GateConfig holds the thresholds a parser backend must meet against gold data
type GateConfig struct {
	MinPrecision     float64 `yaml:"min_precision" mapstructure:"min_precision"`
	MinRecall        float64 `yaml:"min_recall" mapstructure:"min_recall"`
	MaxHallucination float64 `yaml:"max_hallucination" mapstructure:"max_hallucination"`
}

// StoreConfig locates the SQLite database
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig configures rule-set caching
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend       string        `yaml:"backend" mapstructure:"backend"` // layered, memory, redis
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL       time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr     string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// ConcurrencyConfig sizes the parse worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitConfig throttles model-assisted parser calls per provider
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr          string `yaml:"addr" mapstructure:"addr"`
	APIKey        string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule"` // cron spec for parse sweeps
}

// OutputConfig controls CLI rendering
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Format  string `yaml:"format" mapstructure:"format"` // json, markdown
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{Backend: "pattern"},
		LLM: LLMConfig{
			Timeout:        30,
			StrictEvidence: true,
			MaxTokens:      2000,
			MaxRetries:     3,
		},
		Match: MatchConfig{
			UnknownThreshold: 0.5,
			CentralFields:    []string{string(FieldAge), string(FieldSex)},
		},
		Gate: GateConfig{
			MinPrecision:     0.8,
			MinRecall:        0.7,
			MaxHallucination: 0.1,
		},
		Store: StoreConfig{Path: "trialmatch.db"},
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   "layered",
			Dir:       ".trialmatch-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{Workers: 4},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			SweepSchedule: "@every 5m",
		},
		Output: OutputConfig{Format: "json"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}
