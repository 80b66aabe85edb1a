package envelope

import (
	"bytes"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) (time.Time, []byte) {
	t.Helper()
	exp, p, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return exp, p
}

func TestRoundTrip(t *testing.T) {
	deadline := time.Unix(0, 1_700_000_000_000_000_000)
	cases := []struct {
		expiresAt time.Time
		payload   []byte
	}{
		{time.Time{}, nil},
		{time.Time{}, []byte("hello")},
		{deadline, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := Encode(tc.expiresAt, tc.payload)
		exp, p := mustDecode(t, enc)
		if !exp.Equal(tc.expiresAt) {
			t.Fatalf("expiry mismatch: got %v want %v", exp, tc.expiresAt)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(time.Time{}, []byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeaders(t *testing.T) {
	enc := Encode(time.Time{}, []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// truncated
	if _, _, err := Decode(enc[:hdr-1]); err == nil {
		t.Fatalf("expected error on truncated frame")
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	if Expired(time.Time{}, now) {
		t.Fatalf("zero instant must never expire")
	}
	if Expired(now.Add(time.Second), now) {
		t.Fatalf("future deadline reported expired")
	}
	if !Expired(now, now) {
		t.Fatalf("reached deadline not reported expired")
	}
	if !Expired(now.Add(-time.Second), now) {
		t.Fatalf("past deadline not reported expired")
	}
}
