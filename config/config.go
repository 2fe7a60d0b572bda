// Package config loads layered assistmesh configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, then ASSISTMESH_ environment variables. Nested keys in
// environment variables are separated by a double underscore, so
// ASSISTMESH_KNOWLEDGE__VECTOR_STORE__NAME sets knowledge.vector_store.name.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hupe1980/assistmesh/logging"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "ASSISTMESH_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Assistant AssistantConfig `koanf:"assistant"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text, console
}

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// BackendConfig names a backend and carries its construction parameters.
type BackendConfig struct {
	Name   string         `koanf:"name"`
	Params map[string]any `koanf:"params"`
}

// AssistantConfig declares the agents and which one handles user messages.
type AssistantConfig struct {
	Root   string        `koanf:"root"`
	Agents []AgentConfig `koanf:"agents"`

	// RequirePersistence makes run store write failures fail the turn.
	RequirePersistence bool `koanf:"require_persistence"`
	MaxConcurrentTurns int  `koanf:"max_concurrent_turns"`
}

type AgentConfig struct {
	Name              string   `koanf:"name"`
	Role              string   `koanf:"role"`
	Description       string   `koanf:"description"`
	Instructions      []string `koanf:"instructions"`
	ExtraInstructions []string `koanf:"extra_instructions"`
	FallbackText      string   `koanf:"fallback_text"`

	LLM   BackendConfig `koanf:"llm"`
	Tools ToolsConfig   `koanf:"tools"`

	// Team lists member agent names.
	Team []string `koanf:"team"`

	Knowledge            bool `koanf:"knowledge"`
	AddReferences        bool `koanf:"add_references"`
	ReadChatHistory      bool `koanf:"read_chat_history"`
	AddHistoryToMessages bool `koanf:"add_history_to_messages"`
	NumHistoryMessages   int  `koanf:"num_history_messages"`
	AddDateTime          bool `koanf:"add_datetime"`
	Markdown             bool `koanf:"markdown"`
	MaxModelCalls        int  `koanf:"max_model_calls"`
}

type ToolsConfig struct {
	Calculator bool `koanf:"calculator"`
	WebSearch  bool `koanf:"web_search"`

	Shell      bool          `koanf:"shell"`
	ShellDir   string        `koanf:"shell_dir"`
	ShellAllow []string      `koanf:"shell_allow"`
	ShellTime  time.Duration `koanf:"shell_timeout"`

	// FileDir enables the file tools confined to this directory.
	FileDir      string `koanf:"file_dir"`
	FileReadOnly bool   `koanf:"file_read_only"`
}

type KnowledgeConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Embedder    BackendConfig `koanf:"embedder"`
	VectorStore BackendConfig `koanf:"vector_store"`

	// Collection overrides the name derived from the configured backends.
	Collection   string `koanf:"collection"`
	ChunkSize    int    `koanf:"chunk_size"`
	NumDocuments int    `koanf:"num_documents"`
	Concurrency  int    `koanf:"concurrency"`
}

type StorageConfig struct {
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	TablePrefix string `koanf:"table_prefix"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	Metrics     bool   `koanf:"metrics"`
	ServiceName string `koanf:"service_name"`
}

// DefaultAgentName names the agent used when none is configured.
const DefaultAgentName = "assistant"

func defaults() map[string]any {
	return map[string]any{
		"log.level":  "info",
		"log.format": "text",

		"server.addr":            ":8080",
		"server.allowed_origins": []string{"*"},
		"server.request_timeout": "2m",

		"assistant.root":                 DefaultAgentName,
		"assistant.require_persistence":  false,
		"assistant.max_concurrent_turns": 0,

		"knowledge.enabled":           true,
		"knowledge.embedder.name":     "text-embedding-3-small",
		"knowledge.vector_store.name": "chromem",
		"knowledge.chunk_size":        3000,
		"knowledge.num_documents":     3,
		"knowledge.concurrency":       4,

		"storage.driver":       DriverMemory,
		"storage.table_prefix": "assistmesh",
		"storage.redis_addr":   "localhost:6379",

		"telemetry.tracing":      false,
		"telemetry.metrics":      true,
		"telemetry.service_name": "assistmesh",
	}
}

// DefaultAgent is the agent used when the configuration declares none.
func DefaultAgent() AgentConfig {
	return AgentConfig{
		Name:                 DefaultAgentName,
		Description:          "You are a helpful assistant.",
		LLM:                  BackendConfig{Name: "gpt-4o-mini"},
		Tools:                ToolsConfig{Calculator: true},
		Knowledge:            true,
		ReadChatHistory:      true,
		AddHistoryToMessages: true,
		NumHistoryMessages:   6,
		Markdown:             true,
	}
}

// Load reads configuration from defaults, path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if len(cfg.Assistant.Agents) == 0 {
		agent := DefaultAgent()
		agent.Name = cfg.Assistant.Root
		cfg.Assistant.Agents = []AgentConfig{agent}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envValue maps ASSISTMESH_KNOWLEDGE__VECTOR_STORE__NAME to
// knowledge.vector_store.name. Comma separated values become lists.
func envValue(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")

	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}

	return key, value
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Log.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn: required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if _, ok := c.Agent(c.Assistant.Root); !ok {
		errs = append(errs, fmt.Errorf("assistant.root: no agent named %q", c.Assistant.Root))
	}

	seen := make(map[string]bool, len(c.Assistant.Agents))
	for i, a := range c.Assistant.Agents {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("assistant.agents[%d].name: required", i))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("assistant.agents[%d].name: duplicate %q", i, a.Name))
		}
		seen[a.Name] = true

		if a.LLM.Name == "" {
			errs = append(errs, fmt.Errorf("assistant.agents[%d].llm.name: required", i))
		}
	}

	if c.Knowledge.Enabled {
		if c.Knowledge.Embedder.Name == "" {
			errs = append(errs, errors.New("knowledge.embedder.name: required when knowledge is enabled"))
		}
		if c.Knowledge.VectorStore.Name == "" {
			errs = append(errs, errors.New("knowledge.vector_store.name: required when knowledge is enabled"))
		}
	}

	return errors.Join(errs...)
}

// Agent returns the agent declared under name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Assistant.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}
