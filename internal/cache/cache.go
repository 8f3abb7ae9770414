// Package cache defines the gateway's result cache and its key scheme. The
// gateway is the sole owner of this state; no other component touches it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the read-through, write-once-per-key store used by the gateway.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key derives a deterministic cache key from a tool name and its arguments.
// Arguments are normalized by JSON-encoding, which sorts object keys, so
// {a:1,b:2} and {b:2,a:1} produce the same key.
func Key(tool string, args map[string]any) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("normalize cache args: %w", err)
	}
	sum := sha256.Sum256(append([]byte(tool+"\x00"), payload...))
	return "tool:" + tool + ":" + hex.EncodeToString(sum[:]), nil
}
