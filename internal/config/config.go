package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix the bunlog binary reads.
const EnvPrefix = "BUNLOG_"

// Load loads configuration into target from, in increasing priority:
// the config file (".env" when file is empty, in which case a missing
// file is ignored) and environment variables starting with prefix.
// BUNLOG_STORE_PATH sets the key "store.path".
func Load(prefix, file string, target any) error {
	v := viper.New()

	optional := file == ""
	if optional {
		file = ".env"
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	// A .env file holds flat BUNLOG_* keys; give them the dotted form.
	prefixLower := strings.ToLower(prefix)
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, prefixLower) {
			if propKey := envKey(key, prefixLower); propKey != "" {
				v.Set(propKey, v.Get(key))
			}
		}
	}

	// AutomaticEnv does not reach Unmarshal for keys viper has never seen,
	// so copy matching variables in explicitly.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		if propKey := envKey(key, prefixUpper); propKey != "" {
			v.Set(propKey, value)
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// envKey maps PREFIX_STORE_PATH to store.path.
func envKey(key, prefix string) string {
	propKey := strings.TrimPrefix(key, prefix)
	propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
	return strings.TrimPrefix(propKey, ".")
}

// Server is the configuration of "bunlog serve".
type Server struct {
	HTTP  HTTP  `mapstructure:"http"`
	Store Store `mapstructure:"store"`
	Batch Batch `mapstructure:"batch"`
	Cache Cache `mapstructure:"cache"`
	Log   Log   `mapstructure:"log"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
	// Rate is the sustained ingest rate in entries per second; 0 disables
	// limiting.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// Store selects the transport records are kept in.
type Store struct {
	Kind     string `mapstructure:"kind"` // memory, file or sqlite
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"` // memory only; 0 is unbounded
}

type Batch struct {
	Size     int           `mapstructure:"size"`
	Interval time.Duration `mapstructure:"interval"`
}

type Cache struct {
	Size int `mapstructure:"size"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Server {
	return Server{
		HTTP:  HTTP{Addr: ":8088", Rate: 0, Burst: 1000},
		Store: Store{Kind: "memory", Capacity: 100000},
		Batch: Batch{Size: 100, Interval: 500 * time.Millisecond},
		Cache: Cache{Size: 256},
		Log:   Log{Level: "INFO", Format: "text"},
	}
}

// LoadServer returns Default overlaid with file, BUNLOG_* variables and
// then overrides, in that order, and validates the result.
func LoadServer(file string, overrides ...func(*Server)) (Server, error) {
	cfg := Default()
	if err := Load(EnvPrefix, file, &cfg); err != nil {
		return Server{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) Validate() error {
	var errs []error
	switch s.Store.Kind {
	case "memory":
	case "file", "sqlite":
		if s.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for %s storage", s.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.kind %q", s.Store.Kind))
	}
	if s.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if s.HTTP.Rate < 0 {
		errs = append(errs, errors.New("http.rate must not be negative"))
	}
	if s.HTTP.Rate > 0 && s.HTTP.Burst <= 0 {
		errs = append(errs, errors.New("http.burst must be positive when http.rate is set"))
	}
	if s.Batch.Size < 0 || s.Batch.Interval < 0 {
		errs = append(errs, errors.New("batch.size and batch.interval must not be negative"))
	}
	if s.Cache.Size < 0 {
		errs = append(errs, errors.New("cache.size must not be negative"))
	}
	return errors.Join(errs...)
}
