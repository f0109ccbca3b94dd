// Package id provides fallback identifiers for jobs a provider accepted
// without naming them.
package id

import (
	"fmt"
	"time"
)

// Fallback returns "<prefix>-<unix millis>".
func Fallback(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, now.UnixMilli())
}
