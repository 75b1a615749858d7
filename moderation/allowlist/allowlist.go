// Durable set of verified member identities.
//
// Includes an interface and implementations backed by a local JSON file, in-process memory, and redis.
package allowlist

import (
	"context"
	"errors"
)

// Wrapped by implementations when the durable backing store could not be read or written.
var ErrStoreIO = errors.New("allow-list store I/O failure")

type AllowList interface {
	Contains(ctx context.Context, identity string) (bool, error)
	// Adding an identity which is already present is a no-op.
	Add(ctx context.Context, identity string) error
}
