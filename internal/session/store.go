// Package session stores per-conversation chat history for the gateway.
package session

import (
	"context"
	"errors"

	"raggate/pkg/types"
)

// ErrNotFound is returned when a session id does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists conversation history keyed by session id.
//
// Implementations must allow concurrent access across sessions. Writes to
// a single session are serialized by the caller (the orchestrator holds a
// per-session turn lock), so stores need not provide read-modify-write
// atomicity themselves.
type Store interface {
	// Create allocates a new empty session and returns its id.
	Create(ctx context.Context) (string, error)

	// History returns the messages of the session in order. A missing or
	// expired session yields ErrNotFound.
	History(ctx context.Context, sessionID string) ([]types.ChatMessage, error)

	// Append adds messages to the end of the session's history and
	// refreshes its expiry. Clients may bring their own session ids, so a
	// missing session is created rather than rejected.
	Append(ctx context.Context, sessionID string, msgs ...types.ChatMessage) error
}
