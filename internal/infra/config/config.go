package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent    AgentConfig   `yaml:"agent"`
	LLM      LLMConfig     `yaml:"llm"`
	Router   RouterConfig  `yaml:"router"`
	Skills   SkillsConfig  `yaml:"skills"`
	Events   EventsConfig  `yaml:"events"`
	Tools    ToolsConfig   `yaml:"tools"`
	Store    StoreConfig   `yaml:"store"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Includes []string      `yaml:"includes,omitempty"`
}

// AgentConfig holds agentic loop settings.
type AgentConfig struct {
	Persona            string         `yaml:"persona"`
	MaxIterations      int            `yaml:"max_iterations"`
	ParallelTools      bool           `yaml:"parallel_tools"`
	Temperature        float64        `yaml:"temperature"`
	MaxTokens          int            `yaml:"max_tokens"`
	MaxHistoryMessages int            `yaml:"max_history_messages"`
	ContextTokens      int            `yaml:"context_tokens"`
	TokenEncoding      string         `yaml:"token_encoding"`
	FallbackMessage    string         `yaml:"fallback_message"`
	IntentHints        bool           `yaml:"intent_hints"`
	ReasoningMarkers   []MarkerConfig `yaml:"reasoning_markers"`
	TurnTimeout        time.Duration  `yaml:"turn_timeout"`
}

// MarkerConfig is one open/close pair delimiting hidden reasoning.
type MarkerConfig struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// LLMConfig holds generation backend settings.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // "openai_compat" or "scripted"
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	Script         []string      `yaml:"script,omitempty"` // replies for the scripted provider
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the generator.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RouterConfig holds task router settings.
type RouterConfig struct {
	KeywordPoints float64         `yaml:"keyword_points"`
	PatternBonus  float64         `yaml:"pattern_bonus"`
	MaxSkills     int             `yaml:"max_skills"`
	Profiles      []ProfileConfig `yaml:"profiles,omitempty"` // empty = built-in table
}

// ProfileConfig is a specialist profile declared in YAML.
type ProfileConfig struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Capabilities    []string `yaml:"capabilities"`
	Pattern         string   `yaml:"pattern"`
	SystemPrompt    string   `yaml:"system_prompt"`
	Priority        float64  `yaml:"priority"`
	PreferredSkills []string `yaml:"preferred_skills"`
}

// SkillsConfig holds skill registry and matcher settings.
type SkillsConfig struct {
	Enabled              bool             `yaml:"enabled"`
	Dir                  string           `yaml:"dir"`
	Watch                bool             `yaml:"watch"`
	ReloadSchedule       string           `yaml:"reload_schedule"` // cron or duration, empty = never
	MaxPerQuery          int              `yaml:"max_per_query"`
	CacheSize            int              `yaml:"cache_size"`
	PreferenceConfidence float64          `yaml:"preference_confidence"`
	MinWordLength        int              `yaml:"min_word_length"`
	Similarity           SimilarityConfig `yaml:"similarity"`
}

// SimilarityConfig holds the optional embedding strategy settings.
type SimilarityConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider"` // "ollama" or "openai"
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	MinScore float64       `yaml:"min_score"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	SnapshotSize  int           `yaml:"snapshot_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ToolsConfig holds tool executor settings.
type ToolsConfig struct {
	SandboxDir   string        `yaml:"sandbox_dir"`
	RepairJSON   bool          `yaml:"repair_json"`
	RatePerMin   int           `yaml:"rate_per_minute"`
	Burst        int           `yaml:"burst"`
	CalcTimeout  time.Duration `yaml:"calc_timeout"`
	MaxFileBytes int64         `yaml:"max_file_bytes"`
}

// StoreConfig holds outcome persistence settings.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GatewayConfig holds websocket gateway settings.
type GatewayConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Tokens       []string      `yaml:"tokens"`
	RatePerMin   int           `yaml:"rate_per_minute"`
	Burst        int           `yaml:"burst"`
	SessionTTL   time.Duration `yaml:"session_ttl"`   // idle sessions are dropped after this
	ReapSchedule string        `yaml:"reap_schedule"` // cron or duration
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// defaultDataDir returns the persistent data directory under $HOME/.lumen.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".lumen")
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agent: AgentConfig{
			Persona:            "You are Lumen, a helpful assistant running entirely on the user's machine.",
			MaxIterations:      3,
			ParallelTools:      true,
			Temperature:        0.7,
			MaxTokens:          2048,
			MaxHistoryMessages: 20,
			ContextTokens:      6000,
			TokenEncoding:      "cl100k_base",
			FallbackMessage:    "Sorry, I could not generate a response. Please try again.",
			IntentHints:        true,
			ReasoningMarkers: []MarkerConfig{
				{Open: "<thinking>", Close: "</thinking>"},
				{Open: "<think>", Close: "</think>"},
			},
			TurnTimeout: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:       "openai_compat",
			BaseURL:        "http://localhost:11434/v1",
			Model:          "qwen2.5:7b-instruct",
			ConnectTimeout: 30 * time.Second,
			StreamTimeout:  2 * time.Minute,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 3,
				Timeout:     30 * time.Second,
				Interval:    time.Minute,
			},
		},
		Router: RouterConfig{
			KeywordPoints: 2,
			PatternBonus:  3,
			MaxSkills:     3,
		},
		Skills: SkillsConfig{
			Enabled:              true,
			Dir:                  filepath.Join(dataDir, "skills"),
			Watch:                false,
			MaxPerQuery:          3,
			CacheSize:            20,
			PreferenceConfidence: 0.7,
			MinWordLength:        3,
			Similarity: SimilarityConfig{
				Provider: "ollama",
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
				MinScore: 0.35,
				Timeout:  10 * time.Second,
			},
		},
		Events: EventsConfig{
			BatchSize:     10,
			SnapshotSize:  300,
			FlushInterval: 16 * time.Millisecond,
		},
		Tools: ToolsConfig{
			SandboxDir:   filepath.Join(dataDir, "files"),
			RatePerMin:   60,
			Burst:        10,
			CalcTimeout:  2 * time.Second,
			MaxFileBytes: 1 << 20,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    filepath.Join(dataDir, "stats.db"),
		},
		Gateway: GatewayConfig{
			Addr:         "127.0.0.1:8787",
			RatePerMin:   120,
			Burst:        20,
			SessionTTL:   time.Hour,
			ReapSchedule: "10m",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, merges its includes, applies env var
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := mergeIncludes(cfg, absPath); err != nil {
			return nil, err
		}
		// The main file wins over everything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps LUMEN_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	envString("LUMEN_LLM_PROVIDER", &cfg.LLM.Provider)
	envString("LUMEN_LLM_BASE_URL", &cfg.LLM.BaseURL)
	envString("LUMEN_LLM_MODEL", &cfg.LLM.Model)
	envString("LUMEN_LLM_API_KEY", &cfg.LLM.APIKey)
	envInt("LUMEN_AGENT_MAX_ITERATIONS", &cfg.Agent.MaxIterations)
	envBool("LUMEN_AGENT_PARALLEL_TOOLS", &cfg.Agent.ParallelTools)
	envInt("LUMEN_AGENT_CONTEXT_TOKENS", &cfg.Agent.ContextTokens)
	envString("LUMEN_SKILLS_DIR", &cfg.Skills.Dir)
	envBool("LUMEN_SKILLS_WATCH", &cfg.Skills.Watch)
	envString("LUMEN_SKILLS_RELOAD_SCHEDULE", &cfg.Skills.ReloadSchedule)
	envBool("LUMEN_SKILLS_SIMILARITY_ENABLED", &cfg.Skills.Similarity.Enabled)
	envString("LUMEN_SKILLS_SIMILARITY_PROVIDER", &cfg.Skills.Similarity.Provider)
	envString("LUMEN_SKILLS_SIMILARITY_API_KEY", &cfg.Skills.Similarity.APIKey)
	envString("LUMEN_TOOLS_SANDBOX_DIR", &cfg.Tools.SandboxDir)
	envBool("LUMEN_TOOLS_REPAIR_JSON", &cfg.Tools.RepairJSON)
	envBool("LUMEN_STORE_ENABLED", &cfg.Store.Enabled)
	envString("LUMEN_STORE_PATH", &cfg.Store.Path)
	envBool("LUMEN_GATEWAY_ENABLED", &cfg.Gateway.Enabled)
	envString("LUMEN_GATEWAY_ADDR", &cfg.Gateway.Addr)
	if v := os.Getenv("LUMEN_GATEWAY_TOKENS"); v != "" {
		cfg.Gateway.Tokens = splitAndTrim(v, ",")
	}
	envString("LUMEN_LOGGER_LEVEL", &cfg.Logger.Level)
	envString("LUMEN_LOGGER_FORMAT", &cfg.Logger.Format)
	envBool("LUMEN_TRACER_ENABLED", &cfg.Tracer.Enabled)
	envString("LUMEN_TRACER_EXPORTER", &cfg.Tracer.Exporter)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
