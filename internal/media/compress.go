package media

import (
	"context"
	"log/slog"
	"strings"
)

// MIMEWebP is the target format of compression.
const MIMEWebP = "image/webp"

// CompressOptions controls the quality ladder.
type CompressOptions struct {
	// ThresholdBytes is the size above which an image is re-encoded.
	ThresholdBytes int
	// InitialQuality is the first quality tried, in percent.
	InitialQuality int
	// MinQuality is the lowest quality tried, in percent.
	MinQuality int
	// Step is subtracted from the quality after each oversized attempt.
	Step int
}

// DefaultCompressOptions returns a 2 MiB threshold and the ladder 92, 88, 84, 80.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		ThresholdBytes: 2 * 1024 * 1024,
		InitialQuality: 92,
		MinQuality:     80,
		Step:           4,
	}
}

// Compressor shrinks oversized images.
type Compressor struct {
	encoder Encoder
	opts    CompressOptions
	logger  *slog.Logger
}

// NewCompressor creates a Compressor. Zero option fields take their defaults.
func NewCompressor(encoder Encoder, opts CompressOptions, logger *slog.Logger) *Compressor {
	def := DefaultCompressOptions()
	if opts.ThresholdBytes <= 0 {
		opts.ThresholdBytes = def.ThresholdBytes
	}
	if opts.InitialQuality <= 0 {
		opts.InitialQuality = def.InitialQuality
	}
	if opts.MinQuality <= 0 || opts.MinQuality > opts.InitialQuality {
		opts.MinQuality = min(def.MinQuality, opts.InitialQuality)
	}
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{encoder: encoder, opts: opts, logger: logger}
}

// Compress returns data unchanged when it is not an image or fits the
// threshold. Otherwise it re-encodes to WebP, stepping the quality down until
// the result fits, and returns the last attempt when none does. An encoder
// failure before any attempt succeeded yields the original data.
func (c *Compressor) Compress(ctx context.Context, mime string, data []byte) (string, []byte) {
	if !strings.HasPrefix(mime, "image/") || len(data) <= c.opts.ThresholdBytes {
		return mime, data
	}

	var last []byte
	for q := c.opts.InitialQuality; q >= c.opts.MinQuality; q -= c.opts.Step {
		out, err := c.encoder.EncodeWebP(ctx, data, q)
		if err != nil {
			c.logger.Warn("image re-encode failed",
				slog.Int("quality", q),
				slog.String("error", err.Error()),
			)
			break
		}
		last = out
		if len(out) <= c.opts.ThresholdBytes {
			break
		}
	}
	if last == nil {
		return mime, data
	}

	c.logger.Debug("image compressed",
		slog.Int("original_bytes", len(data)),
		slog.Int("compressed_bytes", len(last)),
	)
	return MIMEWebP, last
}
