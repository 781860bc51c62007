// Package idempotency stores the responses of write requests so that a
// retried request carrying the same Idempotency-Key is answered from the
// store instead of being applied twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a stored response is replayed.
const DefaultExpiry = 24 * time.Hour

var (
	// ErrKeyNotFound is returned when no response is stored under a key.
	ErrKeyNotFound = errors.New("idempotency key not found")
	// ErrKeyExists is returned when a response is already stored under a key.
	ErrKeyExists = errors.New("idempotency key already exists")
	// ErrInvalidKey is returned for an empty key or one with non-printable bytes.
	ErrInvalidKey = errors.New("invalid idempotency key")
	// ErrKeyTooLong is returned for a key longer than MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// Record is a stored response.
type Record struct {
	// Key is the ScopedKey the response is stored under.
	Key          string    `json:"key"`
	Method       string    `json:"method"`
	Route        string    `json:"route"`
	StatusCode   int       `json:"statusCode"`
	Body         string    `json:"body"`
	ResponseHash string    `json:"responseHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ValidateKey checks a client supplied key.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// ScopedKey derives the storage key of a client key. Keys are scoped to
// the user and the route, so two clients choosing the same key never see
// each other's responses.
func ScopedKey(userID, method, route, key string) string {
	sum := sha256.Sum256([]byte(userID + "\n" + method + " " + route + "\n" + key))
	return hex.EncodeToString(sum[:])
}

// ComputeResponseHash returns the hex SHA-256 of a response body.
func ComputeResponseHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the stored body still matches its hash.
func (r *Record) Verify() bool {
	return ComputeResponseHash(r.Body) == r.ResponseHash
}

// Repository stores responses by key.
type Repository interface {
	// Get returns the record stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Store saves rec for ttl. It returns ErrKeyExists when a record is
	// already stored under rec.Key.
	Store(ctx context.Context, rec *Record, ttl time.Duration) error
}
