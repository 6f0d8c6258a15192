// Package store persists conversation messages in a Pebble append log and
// fans out committed writes to live subscribers in commit order.
//
// Each conversation path owns a contiguous key range. Message keys are
// zero-padded timestamps with a process-local sequence suffix, so a plain
// byte-order iteration over the range yields chronological order and any two
// keys compare the same way their messages were committed.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// DefaultPageSize is the number of messages served per page when the caller
// does not specify a limit.
const DefaultPageSize = 40

// DefaultLikeMaxAttempts bounds the optimistic like-toggle retry loop.
const DefaultLikeMaxAttempts = 5

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrMessageNotFound indicates the key does not exist under the path.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAQuestion is returned when a like targets a non-question record.
	ErrNotAQuestion = errors.New("message is not a question")

	// ErrLikeConflict is returned when the like-toggle retry budget is
	// exhausted by concurrent writers. The caller's vote is not applied.
	ErrLikeConflict = errors.New("like toggle lost the write race")
)

// Store is a Pebble-backed message log. All mutations are serialized on an
// internal mutex so that stream events are published in exactly the order
// their writes committed.
type Store struct {
	db  *pebble.DB
	hub *hub

	// mu serializes commit+publish; reads go straight to pebble.
	mu     sync.Mutex
	seq    uint64
	closed atomic.Bool

	// LikeMaxAttempts caps optimistic retries in ToggleLike.
	LikeMaxAttempts int
}

// Open opens (or creates) the Pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	log.Info().Str("path", dir).Msg("message store opened")
	return &Store{
		db:              db,
		hub:             newHub(),
		LikeMaxAttempts: DefaultLikeMaxAttempts,
	}, nil
}

// Close shuts down the subscriber hub and the underlying database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.hub.closeAll()
	return s.db.Close()
}

// msgPrefix returns the key range prefix owned by a conversation path.
func msgPrefix(path string) []byte {
	return []byte("msg:" + path + ":")
}

// msgKey returns the full pebble key for one message.
func msgKey(path, key string) []byte {
	return append(msgPrefix(path), key...)
}

// newKey mints a store key: zero-padded UTC nanoseconds plus a sequence
// suffix that breaks same-nanosecond ties. Later commits always compare
// greater.
func (s *Store) newKey() string {
	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, n)
}

// Append commits a new message under path and returns the assigned key.
// The server overwrites any caller-supplied key and timestamp, then notifies
// subscribers with an "added" event before the next write can commit.
func (s *Store) Append(ctx context.Context, path string, m domain.Message) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	m.Key = s.newKey()
	ms := time.Now().UTC().UnixMilli()
	m.TS = &ms

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(msgKey(path, m.Key), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	appendsTotal.WithLabelValues(string(m.EffectiveType())).Inc()
	s.hub.publish(path, domain.StreamEvent{Kind: domain.EventAdded, Key: m.Key, Message: m})
	return m.Key, nil
}

// Get returns one message by key.
func (s *Store) Get(ctx context.Context, path, key string) (domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Message{}, err
	}
	raw, err := s.getRaw(path, key)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Message{}, fmt.Errorf("decode message %s: %w", key, err)
	}
	m.Key = key
	return m, nil
}

// FetchLatest returns the newest limit messages under path in ascending key
// order. A limit <= 0 falls back to DefaultPageSize.
func (s *Store) FetchLatest(ctx context.Context, path string, limit int) ([]domain.Message, error) {
	return s.fetchBackward(ctx, path, "", limit)
}

// FetchOlderThan returns up to limit messages strictly older than beforeKey,
// in ascending key order. It backs the upward pagination path.
func (s *Store) FetchOlderThan(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error) {
	return s.fetchBackward(ctx, path, beforeKey, limit)
}

// fetchBackward walks the conversation range from its end (or from just
// below beforeKey) collecting limit messages, then reverses them so callers
// always receive ascending order.
func (s *Store) fetchBackward(ctx context.Context, path, beforeKey string, limit int) ([]domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	prefix := msgPrefix(path)
	upper := append(append([]byte(nil), prefix...), 0xff)
	if beforeKey != "" {
		// UpperBound is exclusive, which is exactly "strictly older than".
		upper = msgKey(path, beforeKey)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]domain.Message, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m domain.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", iter.Key(), err)
		}
		m.Key = string(iter.Key()[len(prefix):])
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ToggleLike flips voterID's like on a question using a bounded
// compare-and-set loop. The vote set stays authoritative: the cached count
// is recomputed from it on every write and can never go negative. When the
// retry budget is exhausted the vote is not applied and ErrLikeConflict is
// returned.
func (s *Store) ToggleLike(ctx context.Context, path, key, voterID string) (domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Message{}, err
	}
	attempts := s.LikeMaxAttempts
	if attempts <= 0 {
		attempts = DefaultLikeMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		snapshot, err := s.getRaw(path, key)
		if err != nil {
			return domain.Message{}, err
		}
		var m domain.Message
		if err := json.Unmarshal(snapshot, &m); err != nil {
			return domain.Message{}, fmt.Errorf("decode message %s: %w", key, err)
		}
		m.Key = key
		if !m.IsQuestion() {
			return domain.Message{}, ErrNotAQuestion
		}

		likes := make(map[string]bool, len(m.Likes)+1)
		for voter, on := range m.Likes {
			if on {
				likes[voter] = true
			}
		}
		liked := !likes[voterID]
		if liked {
			likes[voterID] = true
		} else {
			delete(likes, voterID)
		}
		m.Likes = likes
		count := len(likes)
		m.LikesCount = &count

		data, err := json.Marshal(m)
		if err != nil {
			return domain.Message{}, fmt.Errorf("marshal message: %w", err)
		}

		if s.casSet(path, key, snapshot, data, m) {
			if liked {
				likeToggleTotal.WithLabelValues("liked").Inc()
			} else {
				likeToggleTotal.WithLabelValues("unliked").Inc()
			}
			return m, nil
		}
	}
	likeToggleTotal.WithLabelValues("conflict").Inc()
	return domain.Message{}, ErrLikeConflict
}

// casSet commits data only if the stored value still equals snapshot, and
// publishes the "changed" event inside the same critical section.
func (s *Store) casSet(path, key string, snapshot, data []byte, m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.getRaw(path, key)
	if err != nil || !bytes.Equal(current, snapshot) {
		return false
	}
	if err := s.db.Set(msgKey(path, key), data, pebble.Sync); err != nil {
		return false
	}
	s.hub.publish(path, domain.StreamEvent{Kind: domain.EventChanged, Key: key, Message: m})
	return true
}

// Remove deletes one message and notifies subscribers. Removing a missing
// key returns ErrMessageNotFound.
func (s *Store) Remove(ctx context.Context, path, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getRaw(path, key); err != nil {
		return err
	}
	if err := s.db.Delete(msgKey(path, key), pebble.Sync); err != nil {
		return fmt.Errorf("delete message %s: %w", key, err)
	}
	s.hub.publish(path, domain.StreamEvent{Kind: domain.EventRemoved, Key: key})
	return nil
}

// Purge deletes every message under path and returns how many were removed.
// Subscribers receive one "removed" event per message, in key order.
func (s *Store) Purge(ctx context.Context, path string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	prefix := msgPrefix(path)
	upper := append(append([]byte(nil), prefix...), 0xff)

	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	var keys []string
	for ok := iter.First(); ok; ok = iter.Next() {
		keys = append(keys, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, err
	}
	iter.Close()

	if err := s.db.DeleteRange(prefix, upper, pebble.Sync); err != nil {
		return 0, fmt.Errorf("purge %s: %w", path, err)
	}
	for _, k := range keys {
		s.hub.publish(path, domain.StreamEvent{Kind: domain.EventRemoved, Key: k})
	}
	log.Info().Str("path", path).Int("messages", len(keys)).Msg("conversation purged")
	return len(keys), nil
}

// Subscribe registers a live listener for one conversation path. The channel
// delivers events in commit order; cancel releases the subscription. A
// subscriber that falls too far behind is dropped and its channel closed, at
// which point it must resync with FetchLatest.
func (s *Store) Subscribe(path string) (<-chan domain.StreamEvent, func()) {
	return s.hub.subscribe(path)
}

// getRaw reads the stored bytes for one message, mapping pebble's not-found
// to ErrMessageNotFound.
func (s *Store) getRaw(path, key string) ([]byte, error) {
	v, closer, err := s.db.Get(msgKey(path, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

// ready rejects operations on a closed store or a done context.
func (s *Store) ready(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}
