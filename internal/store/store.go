package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"embedbot/internal/models"
)

// RequestStore tracks pipelines while they run. Records are removed when a
// pipeline ends; nothing outlives its request.
type RequestStore interface {
	Put(ctx context.Context, r *models.RequestRecord) error
	Update(ctx context.Context, r *models.RequestRecord) error
	Get(ctx context.Context, token string) (*models.RequestRecord, error)
	Delete(ctx context.Context, token string) error
	List(ctx context.Context) ([]models.RequestRecord, error)
}

var ErrNotFound = errors.New("not found")

type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.RequestRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*models.RequestRecord)}
}

func (m *MemoryStore) Put(ctx context.Context, r *models.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.Token]; ok {
		return errors.New("request exists")
	}
	now := time.Now().UTC()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	r.UpdatedAt = now
	cp := *r
	m.requests[r.Token] = &cp
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, r *models.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.Token]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	m.requests[r.Token] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*models.RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, token)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]models.RequestRecord, error) {
	m.mu.RLock()
	out := make([]models.RequestRecord, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, *r)
	}
	m.mu.RUnlock()
	sortByStart(out)
	return out, nil
}

// RedisStore keeps records in Redis so several bot replicas share one view.
// The TTL only guards against records orphaned by a crashed process.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

const requestKeyPrefix = "embedbot:request:"

func (r *RedisStore) key(token string) string { return requestKeyPrefix + token }

func (r *RedisStore) Put(ctx context.Context, rec *models.RequestRecord) error {
	now := time.Now().UTC()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	rec.UpdatedAt = now
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(rec.Token), b, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("request exists")
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, rec *models.RequestRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetXX(ctx, r.key(rec.Token), b, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (*models.RequestRecord, error) {
	b, err := r.rdb.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec models.RequestRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, r.key(token)).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]models.RequestRecord, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, requestKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []models.RequestRecord{}, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.RequestRecord, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var rec models.RequestRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sortByStart(out)
	return out, nil
}

// Ping reports whether Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStore) Close() error { return r.rdb.Close() }

func sortByStart(recs []models.RequestRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].Token < recs[j].Token
		}
		return recs[i].StartedAt.Before(recs[j].StartedAt)
	})
}
