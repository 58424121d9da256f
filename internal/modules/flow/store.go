// README: Flow session persistence in Redis with optimistic versioning.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "flow:session:%s"
	seqKeyPrefix     = "flow:session:%s:seq:%s"
)

// Store persists sessions. Update succeeds only when the stored version
// equals s.Version, and bumps the version on success.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// NextSeq allocates a new request number for a place field.
	NextSeq(ctx context.Context, id string, f Field) (int64, error)
	// CurrentSeq is the most recently allocated request number.
	CurrentSeq(ctx context.Context, id string, f Field) (int64, error)
}

type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf(sessionKeyPrefix, id)
}

func seqKey(id string, f Field) string {
	return fmt.Sprintf(seqKeyPrefix, id, f)
}

func encodeSession(s *Session) ([]byte, error) {
	return json.Marshal(storedSession{Session: s, Owner: s.Owner})
}

func decodeSession(raw []byte) (*Session, error) {
	st := storedSession{Session: &Session{}}
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	st.Session.Owner = st.Owner
	return st.Session, nil
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	buf, err := encodeSession(s)
	if err != nil {
		return err
	}
	ok, err := r.redis.SetNX(ctx, sessionKey(s.ID), buf, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	key := sessionKey(s.ID)
	err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != s.Version {
			return ErrConflict
		}

		next := *s
		next.Version++
		buf, err := encodeSession(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, r.ttl)
			pipe.Expire(ctx, seqKey(s.ID, FieldOrigin), r.ttl)
			pipe.Expire(ctx, seqKey(s.ID, FieldDestination), r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		s.Version = next.Version
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *RedisStore) NextSeq(ctx context.Context, id string, f Field) (int64, error) {
	key := seqKey(id, f)
	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStore) CurrentSeq(ctx context.Context, id string, f Field) (int64, error) {
	n, err := r.redis.Get(ctx, seqKey(id, f)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// MemoryStore keeps sessions in process. Used when no Redis address is
// configured and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	seqs     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}, seqs: map[string]int64{}}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrConflict
	}
	buf, err := encodeSession(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = buf
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSession(raw)
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	current, err := decodeSession(raw)
	if err != nil {
		return err
	}
	if current.Version != s.Version {
		return ErrConflict
	}
	next := *s
	next.Version++
	buf, err := encodeSession(&next)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = buf
	s.Version = next.Version
	return nil
}

func (m *MemoryStore) NextSeq(_ context.Context, id string, f Field) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[seqKey(id, f)]++
	return m.seqs[seqKey(id, f)], nil
}

func (m *MemoryStore) CurrentSeq(_ context.Context, id string, f Field) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqs[seqKey(id, f)], nil
}
