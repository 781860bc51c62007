// Package audit records administrative changes in a tamper-evident log.
//
// Every entry carries the hash of the entry before it, so editing or
// removing a stored entry breaks the chain from that point on.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entity types.
const (
	EntityEvent = "event"
)

// Actions.
const (
	ActionEventPublish   = "event_publish"
	ActionEventUnpublish = "event_unpublish"
	ActionEventCancel    = "event_cancel"
	ActionEventRestore   = "event_restore"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Log is one stored audit entry.
type Log struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	CreatedAt  time.Time `json:"createdAt"`

	RequestID string `json:"requestId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	// PreviousHash is the Hash of the entry appended before this one, empty
	// for the first entry.
	PreviousHash string `json:"previousHash"`
}

// Entry is the input for appending a Log.
type Entry struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string

	RequestID string
	IPAddress string
	UserAgent string
}

// Hash returns the hex SHA-256 of every field of l, PreviousHash included.
func (l *Log) Hash() string {
	fields := []string{
		l.ID, l.UserID, l.EntityType, l.EntityID, l.Action, l.Outcome,
		l.CreatedAt.UTC().Format(time.RFC3339Nano),
		l.RequestID, l.IPAddress, l.UserAgent, l.PreviousHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// timestamp is the creation time of a new entry. PostgreSQL keeps
// microseconds, so the hash must not cover more.
func timestamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Microsecond)
}
