package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/postgres"
	"github.com/cwrk-planet/realtime-service/internal/security"
	"github.com/cwrk-planet/realtime-service/internal/transport/ws"
	"github.com/cwrk-planet/realtime-service/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// EnvJWTSecret перекрывает auth.secret, чтобы секрет не лежал в файле.
	EnvJWTSecret = "JWT_SECRET"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPC struct {
	Addr string `yaml:"addr"` // пусто: gRPC не поднимаем
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // realtime-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

func (l Logging) ToLoggerConfig() logger.Config {
	level := slog.LevelInfo
	if l.Debug {
		level = slog.LevelDebug
	}
	return logger.Config{
		Service:   l.Service,
		Version:   l.Version,
		Env:       logger.Env(l.Env),
		Backend:   logger.Backend(l.Backend),
		Level:     level,
		Debug:     l.Debug,
		AddSource: l.AddSource,
	}
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"`
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

type SQLite struct {
	Path string `yaml:"path"` // ":memory:": база в памяти
}

type Storage struct {
	Driver   string   `yaml:"driver"` // postgres|sqlite
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
}

func (s Storage) Validate() error {
	switch s.Driver {
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, s.Driver)
	}
	return nil
}

type Auth struct {
	Alg           string        `yaml:"alg"`           // HS256|RS256
	Secret        string        `yaml:"secret"`        // для HS256; перекрывается JWT_SECRET
	PublicKeyPath string        `yaml:"publicKeyPath"` // для RS256
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
	GuestPrefix   string        `yaml:"guestPrefix"`
	GuestName     string        `yaml:"guestName"`
}

func (a Auth) Validate() error {
	switch a.Alg {
	case security.AlgHS256:
		if a.Secret == "" {
			return errors.New("auth.secret (or " + EnvJWTSecret + ") is required for HS256")
		}
	case security.AlgRS256:
		if a.PublicKeyPath == "" {
			return errors.New("auth.publicKeyPath is required for RS256")
		}
	default:
		return fmt.Errorf("auth.alg must be HS256 or RS256, got %q", a.Alg)
	}
	if a.ClockSkew < 0 || a.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}
	return nil
}

func (a Auth) ToVerifierConfig() (security.VerifierConfig, error) {
	vc := security.VerifierConfig{
		Alg:       a.Alg,
		Issuer:    a.Issuer,
		Audience:  a.Audience,
		ClockSkew: a.ClockSkew,
	}
	if a.Alg == security.AlgRS256 {
		pub, err := security.LoadRSAPublicKeyFromPEM(a.PublicKeyPath)
		if err != nil {
			return vc, fmt.Errorf("load public key: %w", err)
		}
		vc.PublicKey = pub
		return vc, nil
	}
	vc.Secret = []byte(a.Secret)
	return vc, nil
}

type WS struct {
	PingEvery      time.Duration `yaml:"pingEvery"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	ReadLimit      int64         `yaml:"readLimit"`
	SendBuffer     int           `yaml:"sendBuffer"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

func (w WS) ToOptions() ws.Options {
	return ws.Options{
		PingEvery:      w.PingEvery,
		WriteTimeout:   w.WriteTimeout,
		ReadLimit:      w.ReadLimit,
		SendBuffer:     w.SendBuffer,
		AllowedOrigins: w.AllowedOrigins,
	}
}

type Chat struct {
	MaxMessageLength int `yaml:"maxMessageLength"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Logging Logging `yaml:"logging"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
	WS      WS      `yaml:"ws"`
	Chat    Chat    `yaml:"chat"`
	CORS    CORS    `yaml:"cors"`
}

// LoadConfig читает YAML из path, иначе из CONFIG_PATH, иначе ./config/config.yaml.
func LoadConfig(path ...string) (*Config, error) {
	filename := os.Getenv("CONFIG_PATH")
	if len(path) > 0 && strings.TrimSpace(path[0]) != "" {
		filename = path[0]
	}
	if filename == "" {
		filename = "./config/config.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if s := os.Getenv(EnvJWTSecret); s != "" {
		cfg.Auth.Secret = s
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "realtime-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "./data/realtime.db"
	}
	if c.Auth.Alg == "" {
		c.Auth.Alg = security.AlgHS256
	}
	if c.WS.PingEvery <= 0 {
		c.WS.PingEvery = 15 * time.Second
	}
	if c.WS.WriteTimeout <= 0 {
		c.WS.WriteTimeout = 5 * time.Second
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}
	if len(c.WS.AllowedOrigins) == 0 {
		c.WS.AllowedOrigins = []string{"*"}
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = c.WS.AllowedOrigins
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return nil
}
