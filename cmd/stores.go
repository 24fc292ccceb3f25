package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/config"
	"github.com/sells-group/invoice-rpa/internal/db"
	"github.com/sells-group/invoice-rpa/internal/store"
)

// stores bundles both tracking stores and whatever backs them.
type stores struct {
	Downloads store.DownloadStore
	Documents store.DocumentStore
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func closeLogged(name string, c interface{ Close() error }) func() {
	return func() {
		if err := c.Close(); err != nil {
			zap.L().Warn("close store", zap.String("store", name), zap.Error(err))
		}
	}
}

// openStores opens both tracking stores for c and migrates them.
func openStores(ctx context.Context, c *config.Config) (*stores, error) {
	switch c.Store.Driver {
	case "sqlite", "":
		dl, err := store.OpenSQLiteDownloads(ctx, filepath.Join(c.Paths.DownloadDir, store.DownloadDBName))
		if err != nil {
			return nil, err
		}
		docs, err := store.OpenSQLiteDocuments(ctx, filepath.Join(c.Paths.DocumentDir, store.DocumentDBName))
		if err != nil {
			_ = dl.Close()
			return nil, err
		}
		return &stores{
			Downloads: dl,
			Documents: docs,
			closers:   []func(){closeLogged("downloads", dl), closeLogged("documents", docs)},
		}, nil

	case "postgres":
		pool, err := db.Connect(ctx, c.Store.DatabaseURL, db.PoolConfig{})
		if err != nil {
			return nil, err
		}
		dl := store.NewPostgresDownloads(pool)
		docs := store.NewPostgresDocuments(pool)
		for _, m := range []interface{ Migrate(context.Context) error }{dl, docs} {
			if err := m.Migrate(ctx); err != nil {
				pool.Close()
				return nil, eris.Wrap(err, "migrate store")
			}
		}
		return &stores{
			Downloads: dl,
			Documents: docs,
			closers:   []func(){pool.Close},
		}, nil

	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}
