package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ImageHost publishes an image and returns a URL to it.
type ImageHost interface {
	Publish(ctx context.Context, key, contentType string, data io.Reader) (string, error)
}

// Preparer turns a local image file into the string a create request carries.
type Preparer struct {
	compressor *Compressor
	host       ImageHost
	logger     *slog.Logger
}

// NewPreparer creates a Preparer. With a nil host images are inlined as
// data URLs.
func NewPreparer(compressor *Compressor, host ImageHost, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{compressor: compressor, host: host, logger: logger}
}

// Prepare reads path, compresses it if oversized, and either publishes it or
// encodes it as a data URL. Values that already are URLs pass through.
func (p *Preparer) Prepare(ctx context.Context, path string) (string, error) {
	if path == "" || isURL(path) {
		return path, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is chosen by the CLI user
	if err != nil {
		return "", fmt.Errorf("media: read image: %w", err)
	}
	mime := SniffMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("media: %s is not an image (%s)", path, mime)
	}
	mime, data = p.compressor.Compress(ctx, mime, data)

	if p.host != nil {
		key := uuid.NewString() + extensionOf(mime)
		url, err := p.host.Publish(ctx, key, mime, bytes.NewReader(data))
		if err == nil {
			return url, nil
		}
		p.logger.Warn("image publish failed; inlining",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return EncodeDataURL(mime, data), nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:")
}

func extensionOf(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case MIMEWebP:
		return ".webp"
	default:
		return ""
	}
}
