package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access for the event store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisBackend keeps one hash per record plus sorted-set indexes scored by
// millisecond timestamps.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend constructs a Redis-backed store and pings the server.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "opsmemory"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return &RedisBackend{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// Put upserts a record and moves its index memberships.
func (s *RedisBackend) Put(ctx context.Context, coll Collection, rec Record) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	key := s.recordKey(coll, rec.ID)
	oldIdx, err := s.loadIndex(ctx, key)
	if err != nil {
		return err
	}

	idxRaw, err := json.Marshal(rec.Index)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	ms := toMillis(rec.Timestamp)
	member := redis.Z{Score: float64(ms), Member: rec.ID}

	pipe := s.client.TxPipeline()
	for field, value := range oldIdx {
		if rec.Index[field] != value {
			pipe.ZRem(ctx, s.indexKey(coll, field, value), rec.ID)
		}
	}
	pipe.HSet(ctx, key,
		"ts", strconv.FormatInt(ms, 10),
		"idx", string(idxRaw),
		"data", rec.Data,
	)
	pipe.ZAdd(ctx, s.timeKey(coll), member)
	for field, value := range rec.Index {
		pipe.ZAdd(ctx, s.indexKey(coll, field, value), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write %s record %s: %w", coll, rec.ID, err)
	}
	return nil
}

// Get loads one record.
func (s *RedisBackend) Get(ctx context.Context, coll Collection, id string) (Record, error) {
	hash, err := s.client.HGetAll(ctx, s.recordKey(coll, id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("read %s record %s: %w", coll, id, err)
	}
	if len(hash) == 0 {
		return Record{}, ErrNotFound
	}
	return decodeHash(id, hash), nil
}

// Range reads ids from the timestamp or secondary index set, then the hashes.
func (s *RedisBackend) Range(ctx context.Context, coll Collection, q RangeQuery) ([]Record, error) {
	setKey := s.timeKey(coll)
	if q.Field != "" {
		setKey = s.indexKey(coll, q.Field, q.Value)
	}
	lo, hi := "-inf", "+inf"
	if !q.Since.IsZero() {
		lo = strconv.FormatInt(toMillis(q.Since), 10)
	}
	if !q.Until.IsZero() {
		hi = strconv.FormatInt(toMillis(q.Until), 10)
	}

	ids, err := s.client.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", coll, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(coll, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load %s records: %w", coll, err)
	}

	out := make([]Record, 0, len(ids))
	for i, cmd := range cmds {
		hash, err := cmd.Result()
		if err != nil || len(hash) == 0 {
			continue
		}
		out = append(out, decodeHash(ids[i], hash))
	}
	return out, nil
}

// Delete removes records with all their index memberships.
func (s *RedisBackend) Delete(ctx context.Context, coll Collection, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		key := s.recordKey(coll, id)
		idx, err := s.loadIndex(ctx, key)
		if err != nil {
			return removed, err
		}
		pipe := s.client.TxPipeline()
		del := pipe.Del(ctx, key)
		pipe.ZRem(ctx, s.timeKey(coll), id)
		for field, value := range idx {
			pipe.ZRem(ctx, s.indexKey(coll, field, value), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("delete %s record %s: %w", coll, id, err)
		}
		removed += int(del.Val())
	}
	return removed, nil
}

// Count returns the number of records in a collection.
func (s *RedisBackend) Count(ctx context.Context, coll Collection) (int, error) {
	n, err := s.client.ZCard(ctx, s.timeKey(coll)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", coll, err)
	}
	return int(n), nil
}

// Close closes Redis resources.
func (s *RedisBackend) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisBackend) loadIndex(ctx context.Context, key string) (map[string]string, error) {
	raw, err := s.client.HGet(ctx, key, "idx").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index of %s: %w", key, err)
	}
	var idx map[string]string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &idx)
	}
	return idx, nil
}

func (s *RedisBackend) recordKey(coll Collection, id string) string {
	return s.prefix + ":" + string(coll) + ":rec:" + id
}

func (s *RedisBackend) timeKey(coll Collection) string {
	return s.prefix + ":" + string(coll) + ":ts"
}

func (s *RedisBackend) indexKey(coll Collection, field, value string) string {
	return s.prefix + ":" + string(coll) + ":idx:" + field + ":" + value
}

func decodeHash(id string, hash map[string]string) Record {
	ms, _ := strconv.ParseInt(hash["ts"], 10, 64)
	rec := Record{
		ID:        id,
		Timestamp: fromMillis(ms),
		Data:      []byte(hash["data"]),
	}
	if raw := hash["idx"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &rec.Index)
	}
	return rec
}
