package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// instanceID различает реплики за балансировщиком и перезапуски одного пода.
func instanceID(host string) string {
	if host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}

// baseAttrs добавляются к каждой записи процесса.
func baseAttrs(cfg Config, started time.Time) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", string(cfg.Env)),
		slog.String("instance_id", cfg.InstanceID),
		slog.Int("pid", os.Getpid()),
		slog.Time("started_at", started),
	}
}
