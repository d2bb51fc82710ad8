// Package redis keeps open cart sessions in Redis so that any API replica
// can serve a register.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/pos-pricing/internal/domain/session"
)

const (
	keyPrefix = "pos:session:"

	// DefaultTTL bounds how long an untouched cart survives.
	DefaultTTL = 12 * time.Hour

	defaultMaxRetries = 16
)

// ErrContended is returned when optimistic updates of one session keep
// colliding.
var ErrContended = errors.New("session update contended")

var _ session.Store = (*SessionStore)(nil)

// SessionStore implements session.Store. Updates use WATCH/MULTI and are
// retried when another writer touched the key first.
type SessionStore struct {
	client     goredis.UniversalClient
	ttl        time.Duration
	maxRetries int
}

// NewSessionStore returns a store backed by client. A non-positive ttl
// selects DefaultTTL.
func NewSessionStore(client goredis.UniversalClient, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionStore{client: client, ttl: ttl, maxRetries: defaultMaxRetries}
}

func key(id string) string { return keyPrefix + id }

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	ok, err := s.client.SetNX(ctx, key(sess.ID), data, s.ttl).Result()
	if err != nil {
		return errors.Wrapf(err, "create session %s", sess.ID)
	}
	if !ok {
		return errors.Errorf("session %s already exists", sess.ID)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get session %s", id)
	}
	return decode(data)
}

// Update reads the session under WATCH, applies fn and writes the result in
// a MULTI block. fn may run several times.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	k := key(id)
	var out *session.Session
	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return session.ErrNotFound
			}
			return err
		}
		sess, err := decode(data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		next, err := json.Marshal(sess)
		if err != nil {
			return errors.Wrap(err, "encode session")
		}
		if _, err := tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, k, next, s.ttl)
			return nil
		}); err != nil {
			return err
		}
		out = sess
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, k)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		default:
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrContended, "session %s", id)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, key(id)).Result()
	if err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func decode(data []byte) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &sess, nil
}
