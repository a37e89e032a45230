package snapshot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultKey        = "evalboard:snapshot"
	defaultCollection = "snapshots"
	defaultDatabase   = "evalboard"
)

// Open builds a backend from a DSN:
//
//	file:///var/lib/evalboard/snapshot.json (or a bare path)
//	memory://
//	mongodb://host:27017/db?collection=snapshots&key=main
//	redis://host:6379/0?key=evalboard:snapshot
//
// An empty DSN selects the in-memory backend.
func Open(ctx context.Context, dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryBackend(), nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse dsn: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "", "file":
		path := parsed.Path
		if parsed.Scheme == "" {
			path = dsn
		} else if parsed.Host != "" {
			path = parsed.Host + parsed.Path
		}
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("snapshot: file dsn has no path")
		}
		return NewFileBackend(path), nil
	case "memory", "mem":
		return NewMemoryBackend(), nil
	case "mongodb", "mongodb+srv":
		return openMongo(ctx, parsed)
	case "redis", "rediss":
		return openRedis(ctx, parsed)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}
}

func openMongo(ctx context.Context, parsed *url.URL) (Backend, error) {
	query := parsed.Query()
	collection := valueOr(query.Get("collection"), defaultCollection)
	key := valueOr(query.Get("key"), defaultKey)
	query.Del("collection")
	query.Del("key")

	database := valueOr(strings.Trim(parsed.Path, "/"), defaultDatabase)

	uri := *parsed
	uri.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri.String()))
	if err != nil {
		return nil, fmt.Errorf("snapshot: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("snapshot: mongo ping: %w", err)
	}

	backend := NewMongoBackend(client.Database(database).Collection(collection), key)
	backend.client = client
	return backend, nil
}

func openRedis(ctx context.Context, parsed *url.URL) (Backend, error) {
	query := parsed.Query()
	key := valueOr(query.Get("key"), defaultKey)
	query.Del("key")

	uri := *parsed
	uri.RawQuery = query.Encode()

	opts, err := redis.ParseURL(uri.String())
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("snapshot: ping redis: %w", err)
	}

	backend := NewRedisBackend(client, key)
	backend.owned = true
	return backend, nil
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
