package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "REACTOR_"
	// EnvNesting separates nested sections in environment variable names.
	EnvNesting = "__"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// DefaultFiles are tried in order when no config path is given.
var DefaultFiles = []string{
	"reactor.yaml",
	"reactor.yml",
	"reactor.json",
	"config/reactor.yaml",
	"/etc/reactor/reactor.yaml",
}

// Loader layers defaults, a config file, REACTOR_* environment variables
// and dotted-key overrides, later sources winning.
type Loader struct {
	k      *koanf.Koanf
	source string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load builds and validates a Config. An empty configPath searches
// DefaultFiles; a missing explicit path is an error.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.k.Load(confmap.Provider(flatten(DefaultConfig(), ""), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := configPath
	if path == "" {
		path = findDefaultFile()
	}
	if path != "" {
		if err := l.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		l.source = path
	}

	if err := l.k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Source returns the file the last Load read, or "" when only defaults,
// environment and overrides were used.
func (l *Loader) Source() string {
	return l.source
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

func findDefaultFile() string {
	for _, path := range DefaultFiles {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKey maps an environment variable name to a config key.
//
//	REACTOR_LOG_LEVEL                 -> log.level
//	REACTOR_EXECUTOR_MAX_CONCURRENCY  -> executor.max_concurrency
//	REACTOR_LEDGER__REDIS__ADDRESS    -> ledger.redis.address
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if strings.Contains(key, EnvNesting) {
		return strings.ReplaceAll(key, EnvNesting, Delimiter)
	}
	return strings.Replace(key, "_", Delimiter, 1)
}

// flatten turns a struct into dotted mapstructure keys so later sources
// merge into the defaults field by field. Durations stay int64 nanoseconds.
func flatten(v interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	val := reflect.Indirect(reflect.ValueOf(v))
	if val.Kind() != reflect.Struct {
		return out
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if !field.IsExported() || key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + Delimiter + key
		}

		fv := val.Field(i)
		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				continue
			}
			for k, nested := range flatten(fv.Interface(), key) {
				out[k] = nested
			}
		case reflect.Struct:
			for k, nested := range flatten(fv.Interface(), key) {
				out[k] = nested
			}
		case reflect.Map:
			if !fv.IsNil() {
				out[key] = fv.Interface()
			}
		case reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[key] = fv.Int()
		default:
			out[key] = fv.Interface()
		}
	}
	return out
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
