package main

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/realtime-service/config"
	"github.com/cwrk-planet/realtime-service/internal/postgres"
	"github.com/cwrk-planet/realtime-service/internal/service"
	"github.com/cwrk-planet/realtime-service/internal/sqlite"
)

type stores struct {
	channels service.ChannelStore
	servers  service.ServerStore
	messages service.MessageStore
	users    service.UserStore

	ping  func(context.Context) error
	close func()
}

func openStorage(ctx context.Context, cfg config.Storage) (*stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &stores{
			channels: postgres.NewChannelRepository(pool),
			servers:  postgres.NewServerRepository(pool),
			messages: postgres.NewMessageRepository(pool),
			users:    postgres.NewUserRepository(pool),
			ping:     func(ctx context.Context) error { return postgres.Ping(ctx, pool) },
			close:    pool.Close,
		}, nil

	default:
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &stores{
			channels: st,
			servers:  st,
			messages: st,
			users:    st,
			ping:     st.Ping,
			close:    func() { _ = st.Close() },
		}, nil
	}
}
