package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse is a response replayed for a repeated Idempotency-Key.
type CachedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CachedAt    time.Time `json:"cached_at"`
}

// IdempotencyStore remembers successful responses by key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Put(ctx context.Context, key string, resp CachedResponse) error
}

// MemoryIdempotencyStore keeps responses in process for ttl.
type MemoryIdempotencyStore struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]CachedResponse
}

// NewMemoryIdempotencyStore returns an in-memory store.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, entries: make(map[string]CachedResponse)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Since(c.CachedAt) >= s.ttl {
		delete(s.entries, key)
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, resp CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = resp
	return nil
}

// RedisIdempotencyStore shares cached responses between replicas.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore stores responses under prefix with the given ttl.
func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency get: %w", err)
	}
	var c CachedResponse
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return &c, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	// The first stored response wins.
	if err := s.client.SetNX(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency put: %w", err)
	}
	return nil
}

// IdempotencyMiddleware replays the stored response for a POST carrying an
// Idempotency-Key seen before. Only 2xx responses are stored. Keys are scoped
// to the request path.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = r.URL.Path + "|" + key

			cached, ok, err := store.Get(r.Context(), key)
			if err != nil {
				WriteInternal(w, r, err)
				return
			}
			if ok {
				w.Header().Set("Content-Type", cached.ContentType)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, body: &strings.Builder{}}
			next.ServeHTTP(rec, r)
			if rec.status < 200 || rec.status >= 300 {
				return
			}
			resp := CachedResponse{
				Status:      rec.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        []byte(rec.body.String()),
				CachedAt:    time.Now(),
			}
			if err := store.Put(r.Context(), key, resp); err != nil {
				slog.Default().With("component", "api").WarnContext(r.Context(), "failed to store idempotent response",
					"error", err, "request_id", RequestIDFrom(r.Context()))
			}
		})
	}
}
