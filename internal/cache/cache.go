// Package cache holds previously computed transcripts keyed by content
// digest. A hit short-circuits the whole pipeline, so the null-result
// sentinel is stored like any other transcript: repeated uploads of the
// same silent clip must not re-invoke the provider.
package cache

import (
	"context"
	"time"
)

// Store is a digest-keyed, TTL-expiring transcript store. Entries are
// shared across owners: identical bytes resolve to the same transcript
// regardless of who uploaded them.
type Store interface {
	// Lookup returns the live transcript for digest, if any. An entry past
	// its expiry is never returned.
	Lookup(ctx context.Context, digest string) (text string, ok bool, err error)
	// Put inserts or overwrites the transcript with a fresh expiry.
	Put(ctx context.Context, digest, text string, ttl time.Duration) error
	// Purge removes entries expired as of now and returns how many went.
	Purge(ctx context.Context, now time.Time) (int64, error)
	Close() error
}
