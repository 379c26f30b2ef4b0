// Package archive mirrors finalized sessions into Redis. The in-memory
// completed ring stays authoritative; archive failures are logged and
// dropped.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/kabsujon-blip/newOCCP/internal/session"
)

// Key holds the archived sessions list, newest first.
const Key = "sessions:completed"

const opTimeout = 3 * time.Second

// Archive writes completed sessions to a Redis list trimmed to the same cap
// as the in-memory ring.
type Archive struct {
	client redis.Cmdable
	closer interface{ Close() error }
}

// New connects to Redis at addr.
func New(addr, password string, db int) (*Archive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Archive{client: client, closer: client}, nil
}

// NewWithClient wraps an existing client. Test use with redismock.
func NewWithClient(client redis.Cmdable) *Archive {
	return &Archive{client: client}
}

// Store appends a completed session and trims the list.
func (a *Archive) Store(done session.Completed) {
	data, err := json.Marshal(done)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", done.TransactionID).Msg("Failed to marshal archived session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := a.client.LPush(ctx, Key, data).Err(); err != nil {
		log.Warn().Err(err).Str("transaction_id", done.TransactionID).Msg("Failed to archive session")
		return
	}
	if err := a.client.LTrim(ctx, Key, 0, session.MaxCompleted-1).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to trim session archive")
	}
}

// Close releases the underlying client, when owned.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
