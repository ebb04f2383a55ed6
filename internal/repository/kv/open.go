package kv

import (
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"nft_messenger/internal/service/redis"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

// Factory opens namespaces on one configured backend. Only the handle
// matching Backend needs to be set.
type Factory struct {
	Backend string
	DataDir string
	SQLite  *sql.DB
	Mongo   *mongo.Database
	Redis   *redis.RedisService
}

func (f *Factory) Open(namespace string) (Store, error) {
	switch f.Backend {
	case BackendFile, "":
		return NewFileStore(f.DataDir, namespace)
	case BackendSQLite:
		if f.SQLite == nil {
			return nil, fmt.Errorf("sqlite backend selected without a database")
		}
		return NewSQLiteStore(f.SQLite, namespace), nil
	case BackendMongo:
		if f.Mongo == nil {
			return nil, fmt.Errorf("mongo backend selected without a database")
		}
		return NewMongoStore(f.Mongo, namespace), nil
	case BackendRedis:
		if f.Redis == nil {
			return nil, fmt.Errorf("redis backend selected without a client")
		}
		return NewRedisStore(f.Redis, namespace), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", f.Backend)
	}
}
