package domain

import (
	"context"
	"time"
)

// ProgressCache caches read models shared across API instances
type ProgressCache interface {
	GetRecords(ctx context.Context, userID string, dest interface{}) error
	SetRecords(ctx context.Context, userID string, data interface{}, ttl time.Duration) error
	InvalidateRecords(ctx context.Context, userID string) error
}
