// Package media prepares first-frame images for submission: size-bounded
// WebP compression and data URL encoding.
package media

import "context"

// Encoder re-encodes images.
type Encoder interface {
	// EncodeWebP re-encodes src as WebP at the given quality (0-100),
	// keeping the original dimensions.
	EncodeWebP(ctx context.Context, src []byte, quality int) ([]byte, error)
}
