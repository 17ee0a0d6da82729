// Package token implements the resumption token codec. All state needed
// to resume a harvest lives inside the token: the server never stores
// cursors. The payload is sealed with an AEAD, so clients can neither
// read the raw cursor values nor forge a continuation, and the embedded
// expiration time makes every token self-expiring.
package token

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadToken covers every way a token can be unusable: wrong or
// rotated secret, corruption, wrong field count, expiry. Callers must
// not be able to tell these apart.
var ErrBadToken = errors.New("bad resumption token")

// ErrKeySize is returned for secrets that are not exactly 32 bytes.
var ErrKeySize = errors.New("token: secret must be 32 bytes")

const (
	fieldSep  = "|"
	numFields = 8
)

// State is the continuation state carried across requests. Zero times
// and empty strings serialize to empty slots, never omitted, so the
// payload decodes without a schema.
type State struct {
	Expires    time.Time // set by Encode
	Cursor     string    // last delivered catalog id
	TimeCursor time.Time // last delivered update timestamp, tie breaker
	Prefix     string    // metadataPrefix
	From       time.Time
	Until      time.Time
	Set        string
	LastCount  int64 // records delivered so far, across all pages
}

// Codec seals and opens resumption tokens with a shared secret.
// Rotating the secret invalidates all outstanding tokens.
type Codec struct {
	aead cipher.AEAD
	ttl  time.Duration
}

// NewCodec creates a codec from a 32 byte secret and a token lifetime.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(secret)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode seals state into an opaque token and reports when it expires.
// The expiration is embedded inside the encrypted payload, so validity
// checks need no server side bookkeeping.
func (c *Codec) Encode(state State, now time.Time) (string, time.Time, error) {
	expires := now.Add(c.ttl).UTC().Truncate(time.Second)
	fields := []string{
		strconv.FormatInt(expires.Unix(), 10),
		state.Cursor,
		formatTime(state.TimeCursor),
		state.Prefix,
		formatTime(state.From),
		formatTime(state.Until),
		state.Set,
		strconv.FormatInt(state.LastCount, 10),
	}
	plaintext := strings.Join(fields, fieldSep)
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), expires, nil
}

// Decode opens a token and returns the embedded state. Any failure,
// including expiry, yields ErrBadToken.
func (c *Codec) Decode(s string, now time.Time) (State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return State{}, ErrBadToken
	}
	if len(raw) < c.aead.NonceSize() {
		return State{}, ErrBadToken
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return State{}, ErrBadToken
	}
	parts := strings.Split(string(plaintext), fieldSep)
	if len(parts) != numFields {
		return State{}, ErrBadToken
	}
	expiresUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return State{}, ErrBadToken
	}
	expires := time.Unix(expiresUnix, 0).UTC()
	if !expires.After(now) {
		return State{}, ErrBadToken
	}
	var state State
	state.Expires = expires
	state.Cursor = parts[1]
	if state.TimeCursor, err = parseTime(parts[2]); err != nil {
		return State{}, ErrBadToken
	}
	state.Prefix = parts[3]
	if state.From, err = parseTime(parts[4]); err != nil {
		return State{}, ErrBadToken
	}
	if state.Until, err = parseTime(parts[5]); err != nil {
		return State{}, ErrBadToken
	}
	state.Set = parts[6]
	if state.LastCount, err = strconv.ParseInt(parts[7], 10, 64); err != nil {
		return State{}, ErrBadToken
	}
	return state, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}
