package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
// The client reads API, Request, Token and Log; the dev server reads Server,
// Database, Auth and RateLimit.
type Config struct {
	API struct {
		BaseURL string
	}
	Request struct {
		Timeout time.Duration
		Retries int
		Backoff struct {
			Initial time.Duration
			Max     time.Duration
		}
	}
	Token struct {
		Store string
		Path  string
	}
	Log struct {
		Level string
	}

	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}
	RateLimit struct {
		PerMinute int
	}
}

const (
	TokenStoreSQLite = "sqlite"
	TokenStoreMemory = "memory"
)

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("TASKLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.baseurl", "http://localhost:8000")
	v.SetDefault("request.timeout", "10s")
	v.SetDefault("request.retries", 2)
	v.SetDefault("request.backoff.initial", "1s")
	v.SetDefault("request.backoff.max", "10s")
	v.SetDefault("token.store", TokenStoreSQLite)
	v.SetDefault("token.path", "data/credential.db")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("database.path", "data/tasklist.db")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.tokenttl", "168h")
	v.SetDefault("ratelimit.perminute", 60)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Token.Store {
	case TokenStoreSQLite, TokenStoreMemory:
	default:
		return fmt.Errorf("token.store must be %q or %q, got %q", TokenStoreSQLite, TokenStoreMemory, c.Token.Store)
	}
	if c.Request.Retries < 0 {
		return fmt.Errorf("request.retries must not be negative")
	}
	if c.Request.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be positive")
	}
	return nil
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
