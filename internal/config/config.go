// Package config loads the server configuration.
//
// Sources, later ones winning:
//
//  1. Defaults (Default)
//  2. A .env file, if present, loaded into the process environment
//  3. Environment variables: SECTION_KEY maps to section.key, so
//     SESSION_SECRET sets session.secret and DB_DSN sets db.dsn
//  4. Overrides from command-line flags
//
// The result is validated before it is returned. There is deliberately no
// default session secret: the server refuses to start without one.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	DB      DBConfig      `koanf:"db"`
	Session SessionConfig `koanf:"session"`
	Auth    AuthConfig    `koanf:"auth"`
	Club    ClubConfig    `koanf:"club"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"                validate:"min=1,max=65535"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"    validate:"gt=0"`
}

// Addr is host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path (or ":memory:") for sqlite and a connection URL
	// for postgres.
	DSN             string `koanf:"dsn"              validate:"required"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
	ConnectAttempts uint64 `koanf:"connect_attempts" validate:"min=1"`
}

type SessionConfig struct {
	// Secret signs the session cookie. Required, at least 16 characters.
	Secret string        `koanf:"secret" validate:"required,min=16"`
	TTL    time.Duration `koanf:"ttl"    validate:"gt=0"`
	// Store is "memory" or "sql".
	Store              string        `koanf:"store"                validate:"oneof=memory sql"`
	MemorySize         int           `koanf:"memory_size"          validate:"min=1"`
	SweepInterval      time.Duration `koanf:"sweep_interval"       validate:"gt=0"`
	CookieName         string        `koanf:"cookie_name"          validate:"required"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	GenericLoginErrors bool          `koanf:"generic_login_errors"`
}

type AuthConfig struct {
	BcryptCost int `koanf:"bcrypt_cost" validate:"min=4,max=31"`
	// HashConcurrency bounds simultaneous bcrypt operations. 0 means
	// GOMAXPROCS.
	HashConcurrency int `koanf:"hash_concurrency" validate:"min=0"`
}

type ClubConfig struct {
	MemberPasscode string `koanf:"member_passcode" validate:"required"`
	// AdminPasscode empty disables the admin form.
	AdminPasscode    string `koanf:"admin_passcode"`
	PermissiveDelete bool   `koanf:"permissive_delete"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the configuration used when nothing else is set. It is
// not valid on its own: Session.Secret is empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "",
			Port:              8080,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		DB: DBConfig{
			Driver:          "sqlite",
			DSN:             "data/members-only.db",
			AutoMigrate:     true,
			ConnectAttempts: 5,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			Store:         "sql",
			MemorySize:    10000,
			SweepInterval: 10 * time.Minute,
			CookieName:    "sid",
		},
		Auth: AuthConfig{
			BcryptCost:      10,
			HashConcurrency: 0,
		},
		Club: ClubConfig{
			MemberPasscode:   "mango",
			PermissiveDelete: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// sections are the top-level keys environment variables may set. Anything
// else in the environment (PATH, HOME, ...) is ignored.
var sections = map[string]bool{
	"server":  true,
	"db":      true,
	"session": true,
	"auth":    true,
	"club":    true,
	"log":     true,
	"metrics": true,
}

// Options controls Load.
type Options struct {
	// EnvFile is a dotenv file to read first. A missing file is not an
	// error.
	EnvFile string
	// Overrides are applied last, keyed by koanf path ("server.port").
	Overrides map[string]any
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", opts.EnvFile, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config: applying override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// transformEnvKey maps SESSION_COOKIE_SECURE to session.cookie_secure.
// Variables outside the known sections map to "" and are dropped.
func transformEnvKey(key string) string {
	parts := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool { return r == '_' })
	if len(parts) < 2 || !sections[parts[0]] {
		return ""
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}
