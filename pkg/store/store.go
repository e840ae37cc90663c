// Package store defines the persistence adapter for conversation tier
// state. The engine treats it as an opaque key-value store: the key is the
// conversation id, the value is the serialized state blob. No transactional
// guarantees beyond a single Put are assumed.
package store

import (
	"context"
	"errors"

	"github.com/optiad/adpilot/pkg/tierstate"
)

// ErrNotFound is returned by Get when no state exists for a conversation.
var ErrNotFound = errors.New("conversation state not found")

// Store is the adapter contract. Implementations must be safe for
// concurrent use across conversations; per-conversation serialization is
// the caller's responsibility.
type Store interface {
	Put(ctx context.Context, conversationID string, state []byte) error
	Get(ctx context.Context, conversationID string) ([]byte, error)
	Delete(ctx context.Context, conversationID string) error
}

// SaveState serializes and persists a tier state under conversationID.
func SaveState(ctx context.Context, s Store, conversationID string, state tierstate.TierState) error {
	data, err := tierstate.Serialize(state)
	if err != nil {
		return err
	}
	return s.Put(ctx, conversationID, data)
}

// LoadState fetches and reconstructs a tier state. Malformed records
// deserialize to defensive defaults; only adapter failures and missing
// records surface as errors. Expiry is not checked here, the caller polls
// Machine.IsExpired before trusting the result.
func LoadState(ctx context.Context, s Store, conversationID string) (tierstate.TierState, error) {
	data, err := s.Get(ctx, conversationID)
	if err != nil {
		return tierstate.TierState{}, err
	}
	return tierstate.Deserialize(data), nil
}
