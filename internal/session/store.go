// Package session holds short-lived per-user state: auth progress and language.
package session

import (
	"context"
	"fmt"
	"time"
)

// Store is a string key/value store with optional expiry. A zero ttl never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func AuthKey(botID, userID string) string {
	return fmt.Sprintf("auth:%s:%s", botID, userID)
}

func PendingKey(botID, userID string) string {
	return fmt.Sprintf("pending:%s:%s", botID, userID)
}

func LangKey(botID, userID string) string {
	return fmt.Sprintf("lang:%s:%s", botID, userID)
}
