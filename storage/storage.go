// Package storage opens the repositories of the configured database engine.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
	"github.com/trezcool/weeklog/storage/database"
	"github.com/trezcool/weeklog/storage/database/inmem"
	"github.com/trezcool/weeklog/storage/database/sqlxrepos"
	"github.com/trezcool/weeklog/storage/mongodb"
)

const (
	EnginePostgres = "postgres"
	EngineMongoDB  = "mongodb"
	EngineMemory   = "memory"
)

var ErrUnknownEngine = errors.New("unknown database engine")

// Store holds the repositories of one database connection.
type Store struct {
	Engine string
	Users  user.Repository
	Logs   progress.Repository
	close  func(ctx context.Context) error
}

// Open connects to the configured engine and brings its schema up to date.
func Open(ctx context.Context, conf *core.Config) (*Store, error) {
	switch conf.Database.Engine {
	case EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrating database")
		}
		return &Store{
			Engine: EnginePostgres,
			Users:  sqlxrepos.NewUserRepository(db),
			Logs:   sqlxrepos.NewLogRepository(db),
			close:  func(context.Context) error { return db.Close() },
		}, nil

	case EngineMongoDB:
		db, err := mongodb.Connect(ctx, conf.Database.MongoURI, conf.Database.Name)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to mongodb")
		}
		if err = mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = mongodb.Disconnect(ctx, db)
			return nil, errors.Wrap(err, "creating indexes")
		}
		return &Store{
			Engine: EngineMongoDB,
			Users:  mongodb.NewUserRepository(db),
			Logs:   mongodb.NewLogRepository(db),
			close:  func(ctx context.Context) error { return mongodb.Disconnect(ctx, db) },
		}, nil

	case EngineMemory:
		db := inmemdb.Open()
		return &Store{
			Engine: EngineMemory,
			Users:  inmemdb.NewUserRepository(db),
			Logs:   inmemdb.NewLogRepository(db),
			close:  func(context.Context) error { return nil },
		}, nil
	}
	return nil, errors.Wrap(ErrUnknownEngine, conf.Database.Engine)
}

func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}
