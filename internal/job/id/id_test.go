package id

import (
	"testing"
	"time"
)

func TestFallback(t *testing.T) {
	now := time.UnixMilli(1760000000123)
	if got := Fallback("veo3", now); got != "veo3-1760000000123" {
		t.Errorf("unexpected fallback id %s", got)
	}
}

func TestFallback_DistinctPerMillisecond(t *testing.T) {
	now := time.UnixMilli(1760000000123)
	if Fallback("veo3", now) == Fallback("veo3", now.Add(time.Millisecond)) {
		t.Error("expected different ids one millisecond apart")
	}
}
