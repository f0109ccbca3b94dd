package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/maauso/videogen/internal/storage"
)

// ErrInvalidQuality is returned when the quality is outside 1..100.
var ErrInvalidQuality = errors.New("media: quality must be between 1 and 100")

// Compile-time check that FFmpegEncoder implements Encoder.
var _ Encoder = (*FFmpegEncoder)(nil)

// FFmpegEncoder implements Encoder using the ffmpeg CLI. Inputs and outputs
// go through temporary files.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	temp       storage.Storage
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEncoder(ffmpegPath string, temp storage.Storage) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, temp: temp}
}

// Available reports whether the ffmpeg binary can be found.
func (e *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(e.ffmpegPath)
	return err == nil
}

// EncodeWebP re-encodes src as a single-frame WebP image.
func (e *FFmpegEncoder) EncodeWebP(ctx context.Context, src []byte, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	in, err := e.temp.SaveTemp(ctx, "frame", bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	out := in + ".webp"
	defer func() { _ = e.temp.CleanupTemp(context.WithoutCancel(ctx), []string{in, out}) }()

	args := []string{
		"-y",     // Overwrite output file without asking
		"-i", in, // Input file
		"-frames:v", "1", // Single image
		"-c:v", "libwebp",
		"-quality", fmt.Sprint(quality),
		out,
	}
	if err := e.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	r, err := e.temp.LoadTemp(ctx, out)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("media: read encoded image: %w", err)
	}
	return data, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegEncoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
