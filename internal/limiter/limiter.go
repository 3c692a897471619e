// Package limiter defines interfaces and implementations for scan attempt rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls scan attempts and temporary scanner lockouts.
type Limiter interface {
	// Allow reports whether the scanner may scan now and an optional retry-after.
	Allow(ctx context.Context, scannerHash []byte) (bool, time.Duration, error)
	// Success resets counters after an accepted scan.
	Success(ctx context.Context, scannerHash []byte) error
	// Failure records a rejected scan; may place a temporary block.
	Failure(ctx context.Context, scannerHash []byte) (bool, time.Duration, error)
}

// HashScanner returns a stable hash for a scanner identity to avoid storing it raw.
func HashScanner(id string) []byte {
	h := sha256.Sum256([]byte(id))
	return h[:]
}
