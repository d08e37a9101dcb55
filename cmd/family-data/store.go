package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/familytree/modules/family/infrastructure/persistence"
	"github.com/iota-uz/familytree/pkg/configuration"
)

const closeTimeout = 5 * time.Second

type storeOptions struct {
	backend string
	// migrate applies the PostgreSQL schema before use.
	migrate bool
}

func openStore(ctx context.Context, conf *configuration.Configuration, log *logrus.Entry, opts storeOptions) (persistence.Store, error) {
	switch opts.backend {
	case configuration.BackendMongo:
		if conf.Mongo.URI == "" {
			return nil, withCode(exitUsage, fmt.Errorf("MONGO_URI (or MONGODB_URI) is required for backend %s", opts.backend))
		}
		store, err := persistence.ConnectMongo(ctx, persistence.MongoOptions{
			URI:          conf.Mongo.URI,
			Database:     conf.Mongo.Database,
			Collection:   conf.Mongo.Collection,
			Transactions: conf.Mongo.Transactions,
			Timeout:      conf.Mongo.Timeout,
			Logger:       log,
		})
		if err != nil {
			return nil, withCode(exitDB, err)
		}
		return store, nil
	case configuration.BackendPostgres:
		store, err := persistence.ConnectPostgres(ctx, persistence.PostgresOptions{
			ConnString: conf.Database.Opts,
			Database:   conf.Database.Name,
			Migrate:    opts.migrate,
			Logger:     log,
		})
		if err != nil {
			return nil, withCode(exitDB, err)
		}
		return store, nil
	default:
		return nil, withCode(exitUsage, fmt.Errorf("unsupported backend: %s", opts.backend))
	}
}

func closeStore(store persistence.Store, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		log.WithError(err).Warn("close store")
	}
}

// resolveBackend picks the flag value over the configured backend.
func resolveBackend(flag string, conf *configuration.Configuration) (string, error) {
	v := flag
	if v == "" {
		v = conf.StorageBackend
	}
	backend, err := configuration.NormalizeBackend(v)
	if err != nil {
		return "", withCode(exitUsage, fmt.Errorf("invalid --backend %q: %w", flag, err))
	}
	return backend, nil
}

func loadConfig() (*configuration.Configuration, error) {
	conf, err := configuration.TryUse()
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("configuration: %w", err))
	}
	return conf, nil
}

func commandLogger(conf *configuration.Configuration) *logrus.Entry {
	if l := conf.Logger(); l != nil {
		return logrus.NewEntry(l)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
