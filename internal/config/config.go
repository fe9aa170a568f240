package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// placeholderMarker marks the demonstration credential shipped in sample
// configuration. A key containing it is treated as absent.
const placeholderMarker = "ReplaceMe"

type Config struct {
	DataDir   string `json:"data_dir"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`
	LLM       struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key" secret:"true"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	Analysis struct {
		TimeoutSeconds int `json:"timeout_seconds"`
		MaxAttempts    int `json:"max_attempts"`
		PreviewRows    int `json:"preview_rows"`
	} `json:"analysis"`
	Auth     AuthConfig `json:"auth"`
	Telegram struct {
		Token string `json:"token" secret:"true"`
	} `json:"telegram"`
	Web struct {
		Addr string `json:"addr"`
	} `json:"web"`
	Audit struct {
		Enabled bool `json:"enabled"`
	} `json:"audit"`

	warnings []error
}

// Warnings returns problems found while loading that did not stop it, such
// as a .env file that failed to parse.
func (c *Config) Warnings() []error { return c.warnings }

// AuthConfig selects the identity backend.
type AuthConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key" secret:"true"`
}

// Configured reports whether a real identity backend can be used: the API
// key is set and is not the shipped placeholder.
func (a AuthConfig) Configured() bool {
	key := strings.TrimSpace(a.APIKey)
	return key != "" && !strings.Contains(key, placeholderMarker)
}

// DefaultPath returns ~/.vernacular/config.json.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".vernacular")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:   defaultDataDir(),
		LogLevel:  "info",
		LogFormat: "console",
	}
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.2
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.Analysis.TimeoutSeconds = 60
	cfg.Analysis.MaxAttempts = 3
	cfg.Analysis.PreviewRows = 100
	cfg.Auth.Provider = "firebase"
	cfg.Web.Addr = "127.0.0.1:8080"
	return cfg
}

// Load reads the config file at path, writing defaults when it is missing.
// A .env file next to the config and one in the working directory are loaded
// into the environment first; environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.warnings = loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	applyEnv(cfg)

	return cfg, nil
}

// loadDotEnv loads each existing file. godotenv never overrides variables
// that are already set. Files that exist but fail to load are reported.
func loadDotEnv(paths ...string) []error {
	var errs []error
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", p, err))
		}
	}
	return errs
}

func applyEnv(cfg *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && cfg.LLM.Provider == "anthropic" {
		cfg.LLM.APIKey = apiKey
	}
	if authKey := os.Getenv("FIREBASE_API_KEY"); authKey != "" {
		cfg.Auth.APIKey = authKey
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if level := os.Getenv("VERNACULAR_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// Save writes cfg to path atomically via a temp file and rename.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every config value keyed by its dot path.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads a single dot-path key from the file at path.
func GetValue(path, key string) (any, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-path key in the file at path. The value is stored as
// JSON when it parses as JSON (numbers, booleans), otherwise as a string.
// Keys not present in the file are created.
func SetValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(raw)
	flat[key] = parsed

	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, out)
}

// readRaw loads the file at path, creating it with defaults first when it
// does not exist.
func readRaw(path string) (map[string]any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}
