// Package mongodb stores users and logs in MongoDB.
package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/weeklog/core"
)

const (
	connectTimeout = 10 * time.Second

	usersCollection = "users"
	logsCollection  = "log_entries"
)

// Connect opens a client on uri, pings it and returns the named database.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongodb")
	}
	return client.Database(dbName), nil
}

// Disconnect closes the client of db.
func Disconnect(ctx context.Context, db *mongo.Database) error {
	return db.Client().Disconnect(ctx)
}

func asc(keys ...string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return d
}

// EnsureIndexes creates the unique indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: asc("username"), Options: options.Index().SetUnique(true).SetName("username_unique")},
		{Keys: asc("email"), Options: options.Index().SetUnique(true).SetName("email_unique")},
		{Keys: asc("department")},
	})
	if err != nil {
		return errors.Wrap(err, "creating users indexes")
	}

	_, err = db.Collection(logsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: asc("student_username", "week_number"), Options: options.Index().SetUnique(true).SetName("student_week_unique")},
		{
			Keys: asc("verification_token"),
			Options: options.Index().
				SetUnique(true).
				SetName("verification_token_unique").
				SetPartialFilterExpression(bson.M{"verification_token": bson.M{"$type": "string"}}),
		},
		{Keys: asc("department")},
	})
	return errors.Wrap(err, "creating log_entries indexes")
}

// Drop removes all the app collections.
func Drop(ctx context.Context, db *mongo.Database) error {
	for _, name := range []string{usersCollection, logsCollection} {
		if err := db.Collection(name).Drop(ctx); err != nil {
			return errors.Wrapf(err, "dropping %s", name)
		}
	}
	return nil
}

// sortDoc renders ordering as a sort document; fields outside allowed are dropped.
func sortDoc(ordering []core.DBOrdering, allowed map[string]bool, fallback bson.D) bson.D {
	d := make(bson.D, 0, len(ordering))
	for _, ord := range ordering {
		if !allowed[ord.Field] {
			continue
		}
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		d = append(d, bson.E{Key: ord.Field, Value: dir})
	}
	if len(d) == 0 {
		return fallback
	}
	return d
}
