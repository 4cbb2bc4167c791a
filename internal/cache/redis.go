package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisKeyPrefix = "wikilinks:cache:"

// RedisOptions configures the Redis cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis stores items in Redis. Each item is also recorded in one index set per
// prefix it falls under, so invalidation reads a set instead of scanning keys.
// Index sets expire with the items they list and invalidation removes a member
// from every index it was added to.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, eris.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "connecting to redis at %s", opts.Addr)
	}

	return &Redis{client: client, ttl: opts.TTL}, nil
}

// Get returns the item stored under key.
func (r *Redis) Get(ctx context.Context, key Key) (Item, bool, error) {
	raw, err := r.client.Get(ctx, itemKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Item{}, false, nil
		}
		return Item{}, false, eris.Wrapf(err, "reading cache item %s", key)
	}

	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return Item{}, false, eris.Wrapf(err, "decoding cache item %s", key)
	}

	return item, true, nil
}

// Set stores item under key and records it in its prefix indexes.
func (r *Redis) Set(ctx context.Context, key Key, item Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return eris.Wrap(err, "encoding cache item")
	}

	stored := itemKey(key)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, stored, raw, r.ttl)
		for _, prefix := range prefixesOf(key) {
			index := indexKey(prefix)
			pipe.SAdd(ctx, index, stored)
			if r.ttl > 0 {
				pipe.Expire(ctx, index, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "writing cache item %s", key)
	}

	return nil
}

// Invalidate deletes every item recorded under prefix and returns how many existed.
func (r *Redis) Invalidate(ctx context.Context, prefix Prefix) (int, error) {
	index := indexKey(NewPrefix(prefix.Method, prefix.Path))

	members, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "reading cache index %s", prefix)
	}
	if len(members) == 0 {
		return 0, nil
	}

	unindex := map[string][]any{index: toAny(members)}
	for _, member := range members {
		key, ok := keyOfItem(member)
		if !ok {
			continue
		}
		for _, owner := range prefixesOf(key) {
			if owned := indexKey(owner); owned != index {
				unindex[owned] = append(unindex[owned], member)
			}
		}
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, members...)
		for owned, listed := range unindex {
			pipe.SRem(ctx, owned, listed...)
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "invalidating cache prefix %s", prefix)
	}

	return int(deleted.Val()), nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func itemKey(key Key) string {
	return redisKeyPrefix + "item:" + key.String()
}

// keyOfItem recovers the cache key from a stored item key.
func keyOfItem(stored string) (Key, bool) {
	rest, ok := strings.CutPrefix(stored, redisKeyPrefix+"item:")
	if !ok {
		return Key{}, false
	}
	method, target, ok := strings.Cut(rest, " ")
	if !ok || method == "" {
		return Key{}, false
	}
	path, query, _ := strings.Cut(target, "?")
	return Key{Method: method, Path: path, Query: query}, true
}

func indexKey(prefix Prefix) string {
	return redisKeyPrefix + "index:" + prefix.String()
}

func toAny(values []string) []any {
	result := make([]any, len(values))
	for i, value := range values {
		result[i] = value
	}
	return result
}
