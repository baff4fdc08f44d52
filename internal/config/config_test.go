package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Secret")
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "short")

	_, err := Load(Options{})
	assert.Error(t, err)
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "sid", cfg.Session.CookieName)
	assert.Equal(t, "mango", cfg.Club.MemberPasscode)
	assert.Empty(t, cfg.Club.AdminPasscode)
	assert.True(t, cfg.Club.PermissiveDelete)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("SESSION_COOKIE_SECURE", "true")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("CLUB_PERMISSIVE_DELETE", "false")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost:5432/board?sslmode=disable")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Minute, cfg.Session.TTL)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.False(t, cfg.Club.PermissiveDelete)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SESSION_SECRET="+testSecret+"\nCLUB_ADMIN_PASSCODE=papaya\n"), 0o600))

	// godotenv sets process variables; make sure they are restored.
	t.Setenv("SESSION_SECRET", "")
	os.Unsetenv("SESSION_SECRET")
	t.Setenv("CLUB_ADMIN_PASSCODE", "")
	os.Unsetenv("CLUB_ADMIN_PASSCODE")

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Session.Secret)
	assert.Equal(t, "papaya", cfg.Club.AdminPasscode)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "nope.env")})
	assert.NoError(t, err)
}

func TestLoad_OverridesWin(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load(Options{Overrides: map[string]any{"server.port": 7000, "log.level": "debug"}})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load(Options{})
	assert.Error(t, err)
}

func TestTransformEnvKey(t *testing.T) {
	tests := map[string]string{
		"SESSION_SECRET":        "session.secret",
		"SESSION_COOKIE_SECURE": "session.cookie_secure",
		"DB_DSN":                "db.dsn",
		"PATH":                  "",
		"HOME_DIR":              "",
		"SESSION":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, transformEnvKey(in), in)
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, ":8080", ServerConfig{Port: 8080}.Addr())
	assert.Equal(t, "127.0.0.1:9000", ServerConfig{Host: "127.0.0.1", Port: 9000}.Addr())
}
