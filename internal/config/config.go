package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

const envPrefix = "NEURODECK_"

// Config holds everything the application needs to run. Values are layered:
// yaml file, then NEURODECK_* environment variables, then command-line flags.
type Config struct {
	Database struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"database"`
	Server struct {
		Addr string `koanf:"addr" validate:"required,hostname_port"`
	} `koanf:"server"`
	Media struct {
		Dir string `koanf:"dir" validate:"required"`
	} `koanf:"media"`
	Gemini struct {
		APIKey string `koanf:"api_key"`
		Model  string `koanf:"model" validate:"required"`
	} `koanf:"gemini"`
	Anki struct {
		Endpoint  string            `koanf:"endpoint" validate:"required,url"`
		DeckName  string            `koanf:"deck_name" validate:"required"`
		ModelName string            `koanf:"model_name" validate:"required"`
		IDField   string            `koanf:"id_field" validate:"required"`
		FieldMap  map[string]string `koanf:"field_map"`
		Timeout   time.Duration     `koanf:"timeout" validate:"gt=0"`
	} `koanf:"anki"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	var c Config
	c.Database.Path = "neurodeck.db"
	c.Server.Addr = "127.0.0.1:8080"
	c.Media.Dir = "media"
	c.Gemini.Model = "gemini-1.5-flash-latest"
	c.Anki.Endpoint = "http://127.0.0.1:8765"
	c.Anki.DeckName = "Neurodeck"
	c.Anki.ModelName = "Basic"
	c.Anki.IDField = "id"
	c.Anki.Timeout = 30 * time.Second
	return c
}

// Load builds the configuration from the optional yaml file at path, the
// environment, and the parsed flag set. Flags may be nil.
func Load(path string, flags *flag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// NEURODECK_ANKI__DECK_NAME=... maps to anki.deck_name. A double
	// underscore separates sections so key names may keep single ones.
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			if value == "" {
				return "", nil
			}
			switch key {
			case "db":
				return "database.path", value
			case "addr":
				return "server.addr", value
			case "media-dir":
				return "media.dir", value
			default:
				return "", nil
			}
		}), nil)
		if err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
