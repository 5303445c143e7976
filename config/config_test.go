package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/security"

	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")

	cfg, err := Parse([]byte(`
http:
  addr: ":8080"
auth:
  secret: s3cret
`))
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, security.AlgHS256, cfg.Auth.Alg)
	require.Equal(t, 15*time.Second, cfg.WS.PingEvery)
	require.Equal(t, 256, cfg.WS.SendBuffer)
	require.Equal(t, int64(1<<20), cfg.WS.ReadLimit)
	require.Equal(t, 4000, cfg.Chat.MaxMessageLength)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "realtime-service", cfg.Logging.Service)
}

func TestParse_EnvSecretOverrides(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-env")

	cfg, err := Parse([]byte("http:\n  addr: \":1\"\n"))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.Secret)

	vc, err := cfg.Auth.ToVerifierConfig()
	require.NoError(t, err)
	require.Equal(t, []byte("from-env"), vc.Secret)
}

func TestParse_Validation(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")

	cases := map[string]string{
		"no http addr":  "auth:\n  secret: x\n",
		"no secret":     "http:\n  addr: \":1\"\n",
		"bad alg":       "http:\n  addr: \":1\"\nauth:\n  alg: none\n  secret: x\n",
		"rs256 no key":  "http:\n  addr: \":1\"\nauth:\n  alg: RS256\n",
		"pg no dsn":     "http:\n  addr: \":1\"\nauth:\n  secret: x\nstorage:\n  driver: postgres\n",
		"bad driver":    "http:\n  addr: \":1\"\nauth:\n  secret: x\nstorage:\n  driver: mongo\n",
		"skew too wide": "http:\n  addr: \":1\"\nauth:\n  secret: x\n  clockSkew: 5m\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadConfig_FromEnvPath(t *testing.T) {
	t.Setenv(EnvJWTSecret, "x")
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":7000\"\nws:\n  pingEvery: 2s\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.HTTP.Addr)
	require.Equal(t, 2*time.Second, cfg.WS.ToOptions().PingEvery)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestRepoConfigParses(t *testing.T) {
	t.Setenv(EnvJWTSecret, "dev-secret")

	cfg, err := LoadConfig("config.yaml")
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, int32(10), cfg.Storage.Postgres.ToPGConfig().MaxConns)
	require.Equal(t, "realtime-service", cfg.Logging.ToLoggerConfig().Service)
}
