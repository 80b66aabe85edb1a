// Package redis implements the networked volatile tier on redis/go-redis.
// Payloads may optionally be gzip-compressed; in that mode the native atomic
// INCRBY/DECRBY primitives are unusable (compressed payloads are not
// numerically mutable) and counters fall back to the generic
// get/modify/store composition.
package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache/driver"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

// ID is the registry identifier of this driver.
const ID = "redis"

var ErrNilClient = errors.New("redis driver: nil client")

type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
	compress    bool
}

var (
	_ driver.DynamicStore = (*Store)(nil)
	_ driver.Counter      = (*Store)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this driver exclusively owns the client
	Compression bool // gzip payloads; disables native atomic counters
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, closeClient: cfg.CloseClient, compress: cfg.Compression}, nil
}

// Registration returns the registry entry for this driver. The probe pings
// the server: an unreachable backend simply contributes no registration.
func Registration(cfg Config) driver.Registration {
	return driver.Registration{
		ID: ID,
		Probe: func(ctx context.Context) bool {
			if cfg.Client == nil {
				return false
			}
			return cfg.Client.Ping(ctx).Err() == nil
		},
		Open: func(context.Context) (driver.DynamicStore, error) {
			return New(cfg)
		},
	}
}

func (s *Store) Exists(ctx context.Context, id, realm string) (bool, error) {
	n, err := s.rdb.Exists(ctx, util.FlatKey(realm, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, id, realm string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, util.FlatKey(realm, id)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	if s.compress {
		return s.inflate(b)
	}
	return b, true, nil
}

func (s *Store) Store(ctx context.Context, id string, data []byte, realm string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // non-positive TTL means "no expiry"
	}
	if s.compress {
		var err error
		if data, err = deflate(data); err != nil {
			return err
		}
	}
	return s.rdb.Set(ctx, util.FlatKey(realm, id), data, ttl).Err()
}

func (s *Store) Remove(ctx context.Context, id, realm string) (bool, error) {
	n, err := s.rdb.Del(ctx, util.FlatKey(realm, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear scans and deletes by realm prefix; an empty realm flushes the whole
// database.
func (s *Store) Clear(ctx context.Context, realm string) error {
	if realm == "" {
		return s.rdb.FlushDB(ctx).Err()
	}

	iter := s.rdb.Scan(ctx, 0, util.RealmPrefix(realm)+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Inc uses the native atomic primitive unless compression is enabled, in
// which case the counter key would hold a gzip frame and INCRBY cannot apply.
func (s *Store) Inc(ctx context.Context, id, realm string, delta int64) (int64, error) {
	if s.compress {
		return driver.AddDelta(ctx, s, id, realm, delta)
	}
	return s.rdb.IncrBy(ctx, util.FlatKey(realm, id), delta).Result()
}

func (s *Store) Dec(ctx context.Context, id, realm string, delta int64) (int64, error) {
	if s.compress {
		return driver.AddDelta(ctx, s, id, realm, -delta)
	}
	return s.rdb.DecrBy(ctx, util.FlatKey(realm, id), delta).Result()
}

// Usage parses used_memory and maxmemory out of INFO memory; -1 for figures
// the server does not report.
func (s *Store) Usage(ctx context.Context) (driver.Usage, error) {
	info, err := s.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return driver.UnknownUsage, err
	}

	u := driver.UnknownUsage
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				u.Used = n
			}
		}
		if v, ok := strings.CutPrefix(line, "maxmemory:"); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				u.Max = n
			}
		}
	}
	if u.Used >= 0 && u.Max > 0 {
		u.Available = u.Max - u.Used
		if u.Available < 0 {
			u.Available = 0
		}
	}
	return u, nil
}

// Close releases the underlying client only when this driver owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflate decompresses b. Values written before compression was enabled are
// not gzip frames; those pass through unchanged.
func (s *Store) inflate(b []byte) ([]byte, bool, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return b, true, nil // not a gzip frame; raw payload
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
