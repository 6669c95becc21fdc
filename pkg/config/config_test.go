package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runConfig struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://core.smartkasa.ua"`
	SettleDelay time.Duration `env:"SETTLE_DELAY" envDefault:"5s"`
	Brokers     []string      `env:"BROKERS" envSeparator:","`
}

type credentials struct {
	APIKey   string `env:"API_KEY,required"`
	APILogin string `env:"API_LOGIN,required"`
}

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Sources(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		file    string
		want    runConfig
	}{
		{
			name: "defaults",
			want: runConfig{BaseURL: "https://core.smartkasa.ua", SettleDelay: 5 * time.Second},
		},
		{
			name:    "environment",
			environ: map[string]string{"SETTLE_DELAY": "250ms", "BROKERS": "k1:9092,k2:9092"},
			want: runConfig{
				BaseURL:     "https://core.smartkasa.ua",
				SettleDelay: 250 * time.Millisecond,
				Brokers:     []string{"k1:9092", "k2:9092"},
			},
		},
		{
			name: "env file fills gaps",
			file: "BASE_URL=http://localhost:9000\nSETTLE_DELAY=1s\n",
			want: runConfig{BaseURL: "http://localhost:9000", SettleDelay: time.Second},
		},
		{
			name:    "environment beats env file",
			environ: map[string]string{"SETTLE_DELAY": "2s"},
			file:    "SETTLE_DELAY=1s\n",
			want:    runConfig{BaseURL: "https://core.smartkasa.ua", SettleDelay: 2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := tt.environ
			if environ == nil {
				environ = map[string]string{}
			}
			opts := []Option{WithEnvironment(environ)}
			if tt.file != "" {
				opts = append(opts, WithEnvFiles(writeEnvFile(t, tt.file)))
			}

			var cfg runConfig
			require.NoError(t, Load(&cfg, opts...))
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoad_FirstEnvFileWins(t *testing.T) {
	first := writeEnvFile(t, "BASE_URL=http://first\n")
	second := writeEnvFile(t, "BASE_URL=http://second\nSETTLE_DELAY=3s\n")

	var cfg runConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{}), WithEnvFiles(first, second)))
	assert.Equal(t, "http://first", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
}

func TestLoad_MissingEnvFileSkipped(t *testing.T) {
	var cfg runConfig
	err := Load(&cfg, WithEnvironment(map[string]string{}), WithEnvFiles(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, err)
}

func TestLoad_DoesNotTouchCallerOrProcess(t *testing.T) {
	environ := map[string]string{}
	path := writeEnvFile(t, "SYNC_LOADER_PROBE=1\n")

	var cfg runConfig
	require.NoError(t, Load(&cfg, WithEnvironment(environ), WithEnvFiles(path)))
	assert.Empty(t, environ)
	_, set := os.LookupEnv("SYNC_LOADER_PROBE")
	assert.False(t, set)
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("API_KEY", "sk-key")
	t.Setenv("API_LOGIN", "syrve-login")

	var cfg credentials
	require.NoError(t, Load(&cfg))
	assert.Equal(t, credentials{APIKey: "sk-key", APILogin: "syrve-login"}, cfg)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing required", func(t *testing.T) {
		var cfg credentials
		err := Load(&cfg, WithEnvironment(map[string]string{"API_LOGIN": "x"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
		assert.Equal(t, []string{"API_KEY"}, MissingKeys(err))
	})

	t.Run("bad value", func(t *testing.T) {
		var cfg runConfig
		err := Load(&cfg, WithEnvironment(map[string]string{"SETTLE_DELAY": "soon"}))
		require.Error(t, err)
		assert.Empty(t, MissingKeys(err))
	})

	t.Run("unreadable env file", func(t *testing.T) {
		var cfg runConfig
		err := Load(&cfg, WithEnvironment(map[string]string{}), WithEnvFiles(t.TempDir()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read env file")
	})
}

func TestMissingKeys_OtherErrors(t *testing.T) {
	assert.Nil(t, MissingKeys(nil))
	assert.Nil(t, MissingKeys(os.ErrClosed))
}
