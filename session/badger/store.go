// Package badger implements core.SessionStore on top of an embedded BadgerDB.
//
// Key layout:
//
//	session/<app>/<user>/<id>  -> JSON session record (session-scoped state + events)
//	appstate/<app>             -> JSON map of app: keys
//	userstate/<app>/<user>     -> JSON map of user: keys
//
// Every mutation runs in a single read-write transaction.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/logging"
	"github.com/hupe1980/agentloom/session"
)

// Options configures the store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps all data in RAM; intended for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil disables them.
	Logger logging.Logger
}

// Store is a durable SessionStore.
type Store struct {
	db     *badger.DB
	ownsDB bool
}

// New opens a database according to the options.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{SyncWrites: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}
	return &Store{db: db, ownsDB: true}, nil
}

// NewWithDB wraps an already opened database. Close leaves db open.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

type record struct {
	ID             string         `json:"id"`
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	State          map[string]any `json:"state"`
	Events         []*core.Event  `json:"events"`
	LastUpdateTime int64          `json:"last_update_time"`
}

func sessionKey(appName, userID, sessionID string) []byte {
	return []byte("session/" + appName + "/" + userID + "/" + sessionID)
}

func sessionPrefix(appName, userID string) []byte {
	return []byte("session/" + appName + "/" + userID + "/")
}

func appKey(appName string) []byte { return []byte("appstate/" + appName) }

func userKey(appName, userID string) []byte {
	return []byte("userstate/" + appName + "/" + userID)
}

// Create stores a new session. An empty id is replaced by a generated one.
func (s *Store) Create(_ context.Context, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}
	scoped := session.SplitInitialState(state)
	sess := core.NewSession(appName, userID, sessionID)

	var appState, userState map[string]any
	err := s.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(appName, userID, sessionID)
		if _, err := txn.Get(key); err == nil {
			return session.ErrSessionExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		rec := record{
			ID:             sessionID,
			AppName:        appName,
			UserID:         userID,
			State:          scoped.Session,
			Events:         []*core.Event{},
			LastUpdateTime: sess.LastUpdateTime.UnixNano(),
		}
		if err := putJSON(txn, key, rec); err != nil {
			return err
		}
		var err error
		if appState, err = mergeInto(txn, appKey(appName), scoped.App); err != nil {
			return err
		}
		userState, err = mergeInto(txn, userKey(appName, userID), scoped.User)
		return err
	})
	if err != nil {
		return nil, err
	}
	sess.State = session.MergeState(appState, userState, scoped.Session)
	return sess, nil
}

// Get loads a session with app and user state merged in.
func (s *Store) Get(_ context.Context, appName, userID, sessionID string) (*core.Session, error) {
	var out *core.Session
	err := s.db.View(func(txn *badger.Txn) error {
		var rec record
		if err := getJSON(txn, sessionKey(appName, userID, sessionID), &rec); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return core.ErrSessionNotFound
			}
			return err
		}
		sess, err := materialize(txn, rec, true)
		out = sess
		return err
	})
	return out, err
}

// List returns the user's sessions in key order. Events are omitted.
func (s *Store) List(_ context.Context, appName, userID string) ([]*core.Session, error) {
	out := []*core.Session{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := sessionPrefix(appName, userID)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			sess, err := materialize(txn, rec, false)
			if err != nil {
				return err
			}
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(_ context.Context, appName, userID, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(appName, userID, sessionID))
	})
}

// AppendEvent commits ev to sess and persists it.
func (s *Store) AppendEvent(_ context.Context, sess *core.Session, ev *core.Event) error {
	stored, delta, err := session.ApplyEvent(sess, ev)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(sess.AppName, sess.UserID, sess.ID)
		var rec record
		if err := getJSON(txn, key, &rec); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return core.ErrSessionNotFound
			}
			return err
		}
		if rec.State == nil {
			rec.State = map[string]any{}
		}
		maps.Copy(rec.State, delta.Session)
		rec.Events = append(rec.Events, stored)
		rec.LastUpdateTime = stored.Timestamp.UnixNano()
		if err := putJSON(txn, key, rec); err != nil {
			return err
		}
		if _, err := mergeInto(txn, appKey(sess.AppName), delta.App); err != nil {
			return err
		}
		_, err := mergeInto(txn, userKey(sess.AppName, sess.UserID), delta.User)
		return err
	})
}

func materialize(txn *badger.Txn, rec record, withEvents bool) (*core.Session, error) {
	appState, err := loadMap(txn, appKey(rec.AppName))
	if err != nil {
		return nil, err
	}
	userState, err := loadMap(txn, userKey(rec.AppName, rec.UserID))
	if err != nil {
		return nil, err
	}
	sess := core.NewSession(rec.AppName, rec.UserID, rec.ID)
	sess.State = session.MergeState(appState, userState, rec.State)
	if withEvents && rec.Events != nil {
		sess.Events = rec.Events
	}
	if rec.LastUpdateTime > 0 {
		sess.LastUpdateTime = time.Unix(0, rec.LastUpdateTime).UTC()
	}
	return sess, nil
}

func loadMap(txn *badger.Txn, key []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := getJSON(txn, key, &out); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	return out, nil
}

func mergeInto(txn *badger.Txn, key []byte, delta map[string]any) (map[string]any, error) {
	current, err := loadMap(txn, key)
	if err != nil {
		return nil, err
	}
	if len(delta) == 0 {
		return current, nil
	}
	maps.Copy(current, delta)
	return current, putJSON(txn, key, current)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("badger: encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// badgerLogger adapts logging.Logger to badger's Logger interface.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
