package persistence

import (
	"context"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Status describes where members are stored and how many there are.
type Status struct {
	Backend          string `json:"backend"`
	Database         string `json:"database"`
	Collection       string `json:"collection"`
	DatabaseExists   bool   `json:"database_exists"`
	CollectionExists bool   `json:"collection_exists"`
	Members          int64  `json:"members"`
}

type Pinger interface {
	Ping(ctx context.Context) error
	Inspect(ctx context.Context) (Status, error)
}

// Store is a member repository bound to an open connection. Callers own the
// connection and must Close it.
type Store interface {
	member.Repository
	Pinger
	Close(ctx context.Context) error
}

var (
	_ Store = (*MemoryRepository)(nil)
	_ Store = (*MongoRepository)(nil)
	_ Store = (*PostgresRepository)(nil)
)
