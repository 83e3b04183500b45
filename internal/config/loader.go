// Package config loads daemon configuration from YAML, JSON, or TOML
// files chosen by extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// InferenceConfig holds runtime parameters for the inference daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type InferenceConfig struct {
	Addr             string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir        string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel     string `json:"default_model" yaml:"default_model" toml:"default_model"`
	MaxHistoryChars  int    `json:"max_history_chars" yaml:"max_history_chars" toml:"max_history_chars"`
	KeepLastMessages int    `json:"keep_last_messages" yaml:"keep_last_messages" toml:"keep_last_messages"`
	SummaryMaxTokens int    `json:"summary_max_tokens" yaml:"summary_max_tokens" toml:"summary_max_tokens"`
	CacheSize        int    `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
}

// GatewayConfig holds runtime parameters for the gateway daemon.
type GatewayConfig struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	InferenceURL   string   `json:"inference_url" yaml:"inference_url" toml:"inference_url"`
	ModelsDir      string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	TopK           int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	ChunkChars     int      `json:"chunk_chars" yaml:"chunk_chars" toml:"chunk_chars"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	SessionTTL     string   `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`
	RedisAddr      string   `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword  string   `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB        int      `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
}

// LoadInference reads an inference daemon configuration file.
func LoadInference(path string) (InferenceConfig, error) {
	var cfg InferenceConfig
	err := load(path, &cfg)
	return cfg, err
}

// LoadGateway reads a gateway daemon configuration file.
func LoadGateway(path string) (GatewayConfig, error) {
	var cfg GatewayConfig
	err := load(path, &cfg)
	return cfg, err
}

// load decodes a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func load(path string, dst any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, dst)
	case ".json":
		return json.Unmarshal(b, dst)
	case ".toml":
		return toml.Unmarshal(b, dst)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}
