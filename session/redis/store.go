// Package redis implements core.SessionStore on Redis so several runner
// processes can share sessions.
//
// Key layout (all keys carry the configured prefix):
//
//	session:<app>:<user>:<id>   string, JSON session record
//	sessions:<app>:<user>       set of session ids
//	appstate:<app>              hash, field = state key, value = JSON
//	userstate:<app>:<user>      hash, field = state key, value = JSON
//
// AppendEvent uses optimistic locking (WATCH/MULTI) on the session key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/session"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "agentloom:"

// Options configures the store.
type Options struct {
	Prefix string
	// MaxRetries bounds optimistic-lock retries in AppendEvent.
	MaxRetries int
}

// Store is a Redis-backed SessionStore.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

// New wraps an existing client. The caller owns the client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: DefaultPrefix, MaxRetries: 10}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

type record struct {
	ID             string         `json:"id"`
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	State          map[string]any `json:"state"`
	Events         []*core.Event  `json:"events"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

func (s *Store) sessionKey(appName, userID, sessionID string) string {
	return s.opts.Prefix + "session:" + appName + ":" + userID + ":" + sessionID
}

func (s *Store) indexKey(appName, userID string) string {
	return s.opts.Prefix + "sessions:" + appName + ":" + userID
}

func (s *Store) appKey(appName string) string { return s.opts.Prefix + "appstate:" + appName }

func (s *Store) userKey(appName, userID string) string {
	return s.opts.Prefix + "userstate:" + appName + ":" + userID
}

// Create stores a new session. An empty id is replaced by a generated one.
func (s *Store) Create(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}
	scoped := session.SplitInitialState(state)
	sess := core.NewSession(appName, userID, sessionID)
	data, err := json.Marshal(record{
		ID:             sessionID,
		AppName:        appName,
		UserID:         userID,
		State:          scoped.Session,
		Events:         []*core.Event{},
		LastUpdateTime: sess.LastUpdateTime,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(appName, userID, sessionID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: create session: %w", err)
	}
	if !ok {
		return nil, session.ErrSessionExists
	}

	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.indexKey(appName, userID), sessionID)
		if err := s.queueScopes(ctx, pipe, appName, userID, scoped); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis: create session: %w", err)
	}
	return s.Get(ctx, appName, userID, sessionID)
}

// Get loads a session with app and user state merged in.
func (s *Store) Get(ctx context.Context, appName, userID, sessionID string) (*core.Session, error) {
	rec, err := s.load(ctx, s.client, appName, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.materialize(ctx, rec, true)
}

// List returns the user's sessions ordered by id. Events are omitted.
func (s *Store) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(appName, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	slices.Sort(ids)
	out := make([]*core.Session, 0, len(ids))
	for _, id := range ids {
		rec, err := s.load(ctx, s.client, appName, userID, id)
		if errors.Is(err, core.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sess, err := s.materialize(ctx, rec, false)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, appName, userID, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(appName, userID, sessionID))
		pipe.SRem(ctx, s.indexKey(appName, userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

// AppendEvent commits ev to sess and persists it.
func (s *Store) AppendEvent(ctx context.Context, sess *core.Session, ev *core.Event) error {
	stored, delta, err := session.ApplyEvent(sess, ev)
	if err != nil {
		return err
	}
	key := s.sessionKey(sess.AppName, sess.UserID, sess.ID)

	txf := func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, sess.AppName, sess.UserID, sess.ID)
		if err != nil {
			return err
		}
		if rec.State == nil {
			rec.State = map[string]any{}
		}
		for k, v := range delta.Session {
			rec.State[k] = v
		}
		rec.Events = append(rec.Events, stored)
		rec.LastUpdateTime = stored.Timestamp
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("redis: encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return s.queueScopes(ctx, pipe, sess.AppName, sess.UserID, delta)
		})
		return err
	}

	for range s.opts.MaxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: append event to %s: too much contention", sess.ID)
}

// getter is the read side shared by the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, c getter, appName, userID, sessionID string) (*record, error) {
	data, err := c.Get(ctx, s.sessionKey(appName, userID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load session: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode session: %w", err)
	}
	return &rec, nil
}

func (s *Store) materialize(ctx context.Context, rec *record, withEvents bool) (*core.Session, error) {
	appState, err := s.loadHash(ctx, s.appKey(rec.AppName))
	if err != nil {
		return nil, err
	}
	userState, err := s.loadHash(ctx, s.userKey(rec.AppName, rec.UserID))
	if err != nil {
		return nil, err
	}
	sess := core.NewSession(rec.AppName, rec.UserID, rec.ID)
	sess.State = session.MergeState(appState, userState, rec.State)
	if withEvents && rec.Events != nil {
		sess.Events = rec.Events
	}
	if !rec.LastUpdateTime.IsZero() {
		sess.LastUpdateTime = rec.LastUpdateTime
	}
	return sess, nil
}

func (s *Store) loadHash(ctx context.Context, key string) (map[string]any, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load %s: %w", key, err)
	}
	out := make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("redis: decode %s[%s]: %w", key, k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *Store) queueScopes(ctx context.Context, pipe redis.Pipeliner, appName, userID string, delta session.ScopedDelta) error {
	if err := queueHash(ctx, pipe, s.appKey(appName), delta.App); err != nil {
		return err
	}
	return queueHash(ctx, pipe, s.userKey(appName, userID), delta.User)
}

func queueHash(ctx context.Context, pipe redis.Pipeliner, key string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	fields := make([]any, 0, 2*len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("redis: encode %s: %w", k, err)
		}
		fields = append(fields, k, string(data))
	}
	pipe.HSet(ctx, key, fields...)
	return nil
}
