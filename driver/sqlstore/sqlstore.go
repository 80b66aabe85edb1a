// Package sqlstore implements the relational dynamic tier on database/sql.
// Entries live in one table with a UNIQUE(name, realm) constraint supporting
// upsert; event bindings live in a second table. Expiration is stored as an
// absolute instant (unix nanoseconds; 0 = never).
//
// The store keeps two process-local read accelerators: a read buffer that
// caches the last value fetched per key, and a hydrated map filled by LoadAll
// at process start so frequently needed state is served without per-key
// queries.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache/driver"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	name     TEXT    NOT NULL,
	realm    TEXT    NOT NULL,
	expires  INTEGER NOT NULL DEFAULT 0,
	autoload INTEGER NOT NULL DEFAULT 1,
	content  BLOB,
	UNIQUE (name, realm)
);
CREATE TABLE IF NOT EXISTS cache_bindings (
	event TEXT    NOT NULL,
	name  TEXT    NOT NULL,
	realm TEXT    NOT NULL,
	tier  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_bindings_event ON cache_bindings (event);
`

// Store is the relational dynamic store. The *sql.DB is owned by the caller;
// Close does not release it.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu       sync.RWMutex
	readBuf  map[string]bufEntry            // FlatKey(realm, id) -> row
	hydrated map[string]map[string]bufEntry // realm -> id -> row
}

// bufEntry mirrors one durable row in the process-local accelerators.
// expires is unix nanos; 0 = never. Accelerated reads honor it so a cached
// value cannot outlive its TTL.
type bufEntry struct {
	data    []byte
	expires int64
}

var (
	_ driver.DynamicStore = (*Store)(nil)
	_ driver.Counter      = (*Store)(nil)
)

// New ensures the schema exists and garbage-collects expired rows left behind
// by earlier processes. A failing database is a fatal construction error.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlstore: ensure schema: %w", err)
	}

	s := &Store{
		db:       db,
		now:      time.Now,
		readBuf:  make(map[string]bufEntry),
		hydrated: make(map[string]map[string]bufEntry),
	}
	if _, err := s.GC(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: startup gc: %w", err)
	}
	return s, nil
}

// GC deletes every durable row whose expiration instant has passed and
// returns the number of rows removed.
func (s *Store) GC(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires != 0 AND expires <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Exists(ctx context.Context, id, realm string) (bool, error) {
	if _, ok := s.loadedOrBuffered(id, realm); ok {
		return true, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cache_entries WHERE name = ? AND realm = ? AND (expires = 0 OR expires > ?)`,
		id, realm, s.now().UnixNano()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: exists %q/%q: %w", realm, id, err)
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, id, realm string) ([]byte, bool, error) {
	if b, ok := s.loadedOrBuffered(id, realm); ok {
		return b, true, nil
	}

	var content []byte
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT content, expires FROM cache_entries WHERE name = ? AND realm = ? AND (expires = 0 OR expires > ?)`,
		id, realm, s.now().UnixNano()).Scan(&content, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get %q/%q: %w", realm, id, err)
	}

	s.mu.Lock()
	s.readBuf[util.FlatKey(realm, id)] = bufEntry{data: content, expires: expires}
	s.mu.Unlock()
	return content, true, nil
}

// Store upserts one row flagged for autoload. ttl == 0 stores a
// never-expiring entry.
func (s *Store) Store(ctx context.Context, id string, data []byte, realm string, ttl time.Duration) error {
	return s.StoreWithAutoload(ctx, id, data, realm, ttl, true)
}

// StoreWithAutoload upserts one row controlling the autoload flag consulted
// by LoadAll. Rows written with autoload false are served by point lookups
// only and never bulk-preloaded.
func (s *Store) StoreWithAutoload(ctx context.Context, id string, data []byte, realm string, ttl time.Duration, autoload bool) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixNano()
	}
	al := 0
	if autoload {
		al = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (name, realm, expires, autoload, content) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name, realm) DO UPDATE SET expires = excluded.expires, autoload = excluded.autoload, content = excluded.content`,
		id, realm, expires, al, data)
	if err != nil {
		return fmt.Errorf("sqlstore: store %q/%q: %w", realm, id, err)
	}

	s.mu.Lock()
	s.readBuf[util.FlatKey(realm, id)] = bufEntry{data: data, expires: expires}
	if m, ok := s.hydrated[realm]; ok {
		m[id] = bufEntry{data: data, expires: expires}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(ctx context.Context, id, realm string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE name = ? AND realm = ?`, id, realm)
	if err != nil {
		return false, fmt.Errorf("sqlstore: remove %q/%q: %w", realm, id, err)
	}

	s.mu.Lock()
	delete(s.readBuf, util.FlatKey(realm, id))
	if m, ok := s.hydrated[realm]; ok {
		delete(m, id)
	}
	s.mu.Unlock()

	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Clear deletes every row of realm; an empty realm truncates the full table.
func (s *Store) Clear(ctx context.Context, realm string) error {
	var err error
	if realm == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE realm = ?`, realm)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: clear realm %q: %w", realm, err)
	}

	s.mu.Lock()
	if realm == "" {
		s.readBuf = make(map[string]bufEntry)
		s.hydrated = make(map[string]map[string]bufEntry)
	} else {
		prefix := util.RealmPrefix(realm)
		for k := range s.readBuf {
			if strings.HasPrefix(k, prefix) {
				delete(s.readBuf, k)
			}
		}
		delete(s.hydrated, realm)
	}
	s.mu.Unlock()
	return nil
}

// LoadAll bulk-loads every autoload row of the given realms into the
// process-local hydrated map and returns the number of rows loaded.
// Intended for process start, before per-key traffic begins.
func (s *Store) LoadAll(ctx context.Context, realms ...string) (int, error) {
	if len(realms) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(realms)+1)
	for _, r := range realms {
		args = append(args, r)
	}
	args = append(args, s.now().UnixNano())

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, realm, content, expires FROM cache_entries
		 WHERE realm IN (`+placeholders(len(realms))+`) AND autoload = 1 AND (expires = 0 OR expires > ?)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: load realms: %w", err)
	}
	defer rows.Close()

	count := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var name, realm string
		var content []byte
		var expires int64
		if err := rows.Scan(&name, &realm, &content, &expires); err != nil {
			return count, fmt.Errorf("sqlstore: load realms: %w", err)
		}
		m, ok := s.hydrated[realm]
		if !ok {
			m = make(map[string]bufEntry)
			s.hydrated[realm] = m
		}
		m[name] = bufEntry{data: content, expires: expires}
		count++
	}
	return count, rows.Err()
}

// Loaded reads one entry from the hydrated map without touching the database.
func (s *Store) Loaded(id, realm string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.hydrated[realm]
	if !ok {
		return nil, false
	}
	e, ok := m[id]
	if !ok || (e.expires != 0 && e.expires <= s.now().UnixNano()) {
		return nil, false
	}
	return e.data, true
}

// StoreBatch upserts all entries in one transaction. Used by the write-back
// flush; per-row upserts keep last-writer-wins semantics under concurrent
// processes without explicit locking.
func (s *Store) StoreBatch(ctx context.Context, entries []driver.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: store batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (name, realm, expires, autoload, content) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name, realm) DO UPDATE SET expires = excluded.expires, autoload = excluded.autoload, content = excluded.content`)
	if err != nil {
		return fmt.Errorf("sqlstore: store batch: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, e := range entries {
		var expires int64
		if e.TTL > 0 {
			expires = now.Add(e.TTL).UnixNano()
		}
		al := 0
		if e.Autoload {
			al = 1
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Realm, expires, al, e.Data); err != nil {
			return fmt.Errorf("sqlstore: store batch %q/%q: %w", e.Realm, e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: store batch: %w", err)
	}

	s.mu.Lock()
	for _, e := range entries {
		var expires int64
		if e.TTL > 0 {
			expires = now.Add(e.TTL).UnixNano()
		}
		s.readBuf[util.FlatKey(e.Realm, e.ID)] = bufEntry{data: e.Data, expires: expires}
		if m, ok := s.hydrated[e.Realm]; ok {
			m[e.ID] = bufEntry{data: e.Data, expires: expires}
		}
	}
	s.mu.Unlock()
	return nil
}

// RemoveBatch deletes all keys in one transaction.
func (s *Store) RemoveBatch(ctx context.Context, keys []driver.Key) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: remove batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM cache_entries WHERE name = ? AND realm = ?`)
	if err != nil {
		return fmt.Errorf("sqlstore: remove batch: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.ID, k.Realm); err != nil {
			return fmt.Errorf("sqlstore: remove batch %q/%q: %w", k.Realm, k.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: remove batch: %w", err)
	}

	s.mu.Lock()
	for _, k := range keys {
		delete(s.readBuf, util.FlatKey(k.Realm, k.ID))
		if m, ok := s.hydrated[k.Realm]; ok {
			delete(m, k.ID)
		}
	}
	s.mu.Unlock()
	return nil
}

// Inc adds delta via the generic composition; relational storage offers no
// atomic counter primitive through this interface.
func (s *Store) Inc(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, delta)
}

func (s *Store) Dec(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, -delta)
}

// Usage: a relational backend has no meaningful memory report.
func (s *Store) Usage(context.Context) (driver.Usage, error) {
	return driver.UnknownUsage, nil
}

// Close drops the process-local accelerators. The *sql.DB belongs to the
// caller and stays open.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.readBuf = make(map[string]bufEntry)
	s.hydrated = make(map[string]map[string]bufEntry)
	s.mu.Unlock()
	return nil
}

func (s *Store) loadedOrBuffered(id, realm string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now().UnixNano()
	if m, ok := s.hydrated[realm]; ok {
		if e, ok := m[id]; ok && (e.expires == 0 || e.expires > now) {
			return e.data, true
		}
	}
	e, ok := s.readBuf[util.FlatKey(realm, id)]
	if !ok || (e.expires != 0 && e.expires <= now) {
		return nil, false
	}
	return e.data, true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
