package main

import (
	"context"
	"fmt"

	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	"github.com/NordCoder/Tokengate/internal/domain/outbox"
	"github.com/NordCoder/Tokengate/internal/domain/session"
	"github.com/NordCoder/Tokengate/internal/domain/user"
	"github.com/NordCoder/Tokengate/internal/repository/memory"
	pg "github.com/NordCoder/Tokengate/internal/repository/postgres"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
	"go.uber.org/zap"
)

type storage struct {
	users    user.Repo
	sessions session.Repo
	outbox   outbox.Repository
	tx       auth.Transactor
	ping     func(context.Context) error
	close    func()
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, state is lost on restart")
		st := memory.NewStore()
		return &storage{
			users:    memory.NewUserRepo(st),
			sessions: memory.NewSessionRepo(st),
			outbox:   memory.NewOutboxRepo(st),
			tx:       memory.NewTransactor(st),
			ping:     st.Ping,
			close:    func() {},
		}, nil
	case config.DriverPostgres:
		db, err := pg.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		return &storage{
			users:    pg.NewUserRepo(db),
			sessions: pg.NewSessionRepo(db),
			outbox:   pg.NewOutboxRepo(db),
			tx:       pg.NewTransactor(db, logger),
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	default:
		return nil, config.ErrConfig("unknown storage driver " + cfg.Storage.Driver)
	}
}
