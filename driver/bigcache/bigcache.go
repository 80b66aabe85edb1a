// Package bigcache implements the shared-memory volatile tier on
// allegro/bigcache. BigCache has no per-entry TTL (only a global life
// window), so every stored value carries its absolute expiration instant in
// an envelope frame checked on read.
package bigcache

import (
	"context"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiercache/driver"
	"github.com/unkn0wn-root/tiercache/internal/envelope"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

// ID is the registry identifier of this driver.
const ID = "bigcache"

type Store struct {
	c   *bc.BigCache
	max int64 // configured hard limit in bytes; 0 = unlimited
	now func() time.Time
}

var (
	_ driver.DynamicStore = (*Store)(nil)
	_ driver.Counter      = (*Store)(nil)
)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		// entries carry their own expiry; the life window only bounds how long
		// never-expiring entries may linger
		cfg.LifeWindow = 24 * time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c, max: int64(cfg.HardMaxCacheSizeMB) << 20, now: time.Now}, nil
}

// Registration returns the registry entry for this driver. The backing
// capability is in-process, so the probe always succeeds.
func Registration(cfg Config) driver.Registration {
	return driver.Registration{
		ID:    ID,
		Probe: func(context.Context) bool { return true },
		Open: func(ctx context.Context) (driver.DynamicStore, error) {
			return New(ctx, cfg)
		},
	}
}

func (s *Store) Exists(ctx context.Context, id, realm string) (bool, error) {
	_, ok, err := s.Get(ctx, id, realm)
	return ok, err
}

func (s *Store) Get(_ context.Context, id, realm string) ([]byte, bool, error) {
	key := util.FlatKey(realm, id)
	b, err := s.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	expiresAt, payload, err := envelope.Decode(b)
	if err != nil {
		_ = s.c.Delete(key) // self-heal corrupt
		return nil, false, nil
	}
	if envelope.Expired(expiresAt, s.now()) {
		_ = s.c.Delete(key)
		return nil, false, nil
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

func (s *Store) Store(_ context.Context, id string, data []byte, realm string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	return s.c.Set(util.FlatKey(realm, id), envelope.Encode(expiresAt, data))
}

func (s *Store) Remove(_ context.Context, id, realm string) (bool, error) {
	err := s.c.Delete(util.FlatKey(realm, id))
	if err == bc.ErrEntryNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear walks the iterator and deletes by realm prefix; an empty realm
// resets the whole cache.
func (s *Store) Clear(_ context.Context, realm string) error {
	if realm == "" {
		return s.c.Reset()
	}

	prefix := util.RealmPrefix(realm)
	var keys []string
	it := s.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(e.Key(), prefix) {
			keys = append(keys, e.Key())
		}
	}
	for _, k := range keys {
		if err := s.c.Delete(k); err != nil && err != bc.ErrEntryNotFound {
			return err
		}
	}
	return nil
}

func (s *Store) Inc(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, delta)
}

func (s *Store) Dec(ctx context.Context, id, realm string, delta int64) (int64, error) {
	return driver.AddDelta(ctx, s, id, realm, -delta)
}

func (s *Store) Usage(context.Context) (driver.Usage, error) {
	u := driver.Usage{Used: int64(s.c.Capacity()), Max: -1, Available: -1}
	if s.max > 0 {
		u.Max = s.max
		u.Available = u.Max - u.Used
		if u.Available < 0 {
			u.Available = 0
		}
	}
	return u, nil
}

func (s *Store) Close(context.Context) error {
	return s.c.Close()
}
