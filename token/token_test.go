package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	var (
		c   = testCodec(t, time.Hour)
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)
	cases := []State{
		{},
		{Cursor: "000123456", Prefix: "marc21", LastCount: 100},
		{
			Cursor:     "004217321",
			TimeCursor: time.Date(2023, 2, 3, 4, 5, 6, 0, time.UTC),
			Prefix:     "oai_dc",
			From:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Until:      time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC),
			Set:        "fennica",
			LastCount:  2500,
		},
	}
	for _, state := range cases {
		tok, expires, err := c.Encode(state, now)
		if err != nil {
			t.Fatal(err)
		}
		if want := now.Add(time.Hour); !expires.Equal(want) {
			t.Errorf("expires: got %v, want %v", expires, want)
		}
		got, err := c.Decode(tok, now)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		want := state
		want.Expires = expires
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("state mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestTokensAreOpaque(t *testing.T) {
	var (
		c   = testCodec(t, time.Hour)
		now = time.Now()
	)
	tok, _, err := c.Encode(State{Cursor: "000999999", Prefix: "marc21"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(tok, "000999999") || strings.Contains(tok, "marc21") {
		t.Errorf("token leaks payload: %s", tok)
	}
}

func TestExpiry(t *testing.T) {
	var (
		c   = testCodec(t, time.Minute)
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)
	tok, expires, err := c.Encode(State{Cursor: "1"}, now)
	if err != nil {
		t.Fatal(err)
	}
	// Valid right up to, but not at, the expiration instant.
	if _, err := c.Decode(tok, expires.Add(-time.Second)); err != nil {
		t.Errorf("decode before expiry: %v", err)
	}
	for _, at := range []time.Time{expires, expires.Add(time.Second), expires.Add(24 * time.Hour)} {
		if _, err := c.Decode(tok, at); err != ErrBadToken {
			t.Errorf("decode at %v: got %v, want ErrBadToken", at, err)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	c := testCodec(t, time.Hour)
	now := time.Now()
	for _, s := range []string{
		"",
		"not a token",
		"AAAA",
		strings.Repeat("A", 200),
		"%%%",
	} {
		if _, err := c.Decode(s, now); err != ErrBadToken {
			t.Errorf("decode %q: got %v, want ErrBadToken", s, err)
		}
	}
}

func TestRotatedSecret(t *testing.T) {
	var (
		old = testCodec(t, time.Hour)
		now = time.Now()
	)
	tok, _, err := old.Encode(State{Cursor: "000000001"}, now)
	if err != nil {
		t.Fatal(err)
	}
	rotated, err := NewCodec([]byte("fedcba9876543210fedcba9876543210"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rotated.Decode(tok, now); err != ErrBadToken {
		t.Errorf("decode with rotated secret: got %v, want ErrBadToken", err)
	}
}

func TestTamperedToken(t *testing.T) {
	var (
		c   = testCodec(t, time.Hour)
		now = time.Now()
	)
	tok, _, err := c.Encode(State{Cursor: "000000001"}, now)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a character somewhere past the nonce.
	b := []byte(tok)
	i := len(b) / 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	if _, err := c.Decode(string(b), now); err != ErrBadToken {
		t.Errorf("decode tampered: got %v, want ErrBadToken", err)
	}
}

func TestNewCodecKeySize(t *testing.T) {
	if _, err := NewCodec([]byte("short"), time.Hour); err != ErrKeySize {
		t.Errorf("got %v, want ErrKeySize", err)
	}
}
