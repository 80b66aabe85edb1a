// Package envelope frames cache payloads with their absolute expiration
// instant for backends that have no per-entry TTL of their own (e.g.
// BigCache, which only supports a global life window). The driver checks the
// instant on read and treats a passed deadline as a miss.
package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("envelope: corrupt entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

const hdr = 4 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames payload with its expiration instant.
// A zero expiresAt means the entry never expires.
//
// Layout: magic(4) | ver(1) | expires(u64 be, unix nanos; 0 = never) | vlen(u32 be) | payload(vlen)
func Encode(expiresAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdr + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	var exp uint64
	if !expiresAt.IsZero() {
		exp = uint64(expiresAt.UnixNano())
	}
	binary.BigEndian.PutUint64(u8[:], exp)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode unframes b. The returned expiresAt is zero for never-expiring
// entries. The payload aliases b; callers must not retain it past b.
func Decode(b []byte) (expiresAt time.Time, payload []byte, err error) {
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return time.Time{}, nil, ErrCorrupt
	}

	off := 5

	exp := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict: no trailing bytes
		return time.Time{}, nil, ErrCorrupt
	}

	if exp != 0 {
		expiresAt = time.Unix(0, int64(exp))
	}
	return expiresAt, b[off : off+vlen], nil
}

// Expired reports whether an instant decoded from an envelope has passed.
// The zero instant never expires.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
