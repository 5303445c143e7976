package logger

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	def *slog.Logger
)

// Init настраивает глобальный slog и возвращает его.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	} else {
		cfg.Env = ParseEnv(string(cfg.Env))
	}
	if cfg.Service == "" {
		cfg.Service = "realtime-service"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = instanceID(host)
	}

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	base := slog.New(h.WithAttrs(baseAttrs(cfg, time.Now())))
	slog.SetDefault(base)

	mu.Lock()
	def = base
	mu.Unlock()
	return base
}

func L() *slog.Logger {
	mu.RLock()
	l := def
	mu.RUnlock()
	if l != nil {
		return l
	}
	return Init(Config{})
}

// Component: логгер с полем component.
func Component(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
