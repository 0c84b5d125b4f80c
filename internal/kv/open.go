package kv

import (
	"context"
	"fmt"
	"io"

	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/database"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the backend selected by cfg.Storage.Backend. The returned closer
// releases the underlying connection.
func Open(ctx context.Context, cfg *config.Config) (Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return NewMemory(), nopCloser{}, nil
	case config.BackendPostgres:
		db, err := database.NewConnection(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgres(db), db, nil
	case config.BackendRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(client, cfg.Storage.KeyPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
