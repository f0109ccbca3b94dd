package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maauso/videogen/internal/storage"
)

// skipIfNoWebP skips the test if ffmpeg or its libwebp encoder is missing.
func skipIfNoWebP(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil || !bytes.Contains(out, []byte("libwebp")) {
		t.Skip("ffmpeg built without libwebp, skipping test")
	}
}

// createTestImage creates a simple test image using ffmpeg.
func createTestImage(t *testing.T, path string, width, height int) []byte {
	t.Helper()

	// Create a simple solid color image using ffmpeg
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=%dx%d:d=1", width, height),
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read test image: %v", err)
	}
	return data
}

func newTestEncoder(t *testing.T) (*FFmpegEncoder, string) {
	t.Helper()
	dir := t.TempDir()
	temp, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return NewFFmpegEncoder("", temp), dir
}

func TestNewFFmpegEncoder(t *testing.T) {
	enc := NewFFmpegEncoder("", nil)
	if enc.ffmpegPath != "ffmpeg" {
		t.Errorf("expected default path 'ffmpeg', got %q", enc.ffmpegPath)
	}

	enc = NewFFmpegEncoder("/custom/ffmpeg", nil)
	if enc.ffmpegPath != "/custom/ffmpeg" {
		t.Errorf("expected custom path, got %q", enc.ffmpegPath)
	}
	if enc.Available() {
		t.Error("Available() = true for a missing binary")
	}
}

func TestEncodeWebP_InvalidQuality(t *testing.T) {
	enc := NewFFmpegEncoder("", nil)
	for _, q := range []int{0, -1, 101} {
		if _, err := enc.EncodeWebP(context.Background(), []byte("x"), q); !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("EncodeWebP(q=%d) error = %v, want ErrInvalidQuality", q, err)
		}
	}
}

func TestEncodeWebP(t *testing.T) {
	skipIfNoWebP(t)

	enc, dir := newTestEncoder(t)
	src := createTestImage(t, filepath.Join(dir, "input.png"), 64, 48)

	out, err := enc.EncodeWebP(context.Background(), src, 80)
	if err != nil {
		t.Fatalf("EncodeWebP() error = %v", err)
	}
	if got := SniffMIME(out); got != MIMEWebP {
		t.Errorf("SniffMIME(output) = %q, want %q", got, MIMEWebP)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "frame") {
			t.Errorf("temp file %s was not cleaned up", e.Name())
		}
	}
}

func TestEncodeWebP_CorruptInput(t *testing.T) {
	skipIfNoWebP(t)

	enc, _ := newTestEncoder(t)
	_, err := enc.EncodeWebP(context.Background(), []byte("not an image"), 80)

	var ffErr *FFmpegError
	if !errors.As(err, &ffErr) {
		t.Fatalf("expected FFmpegError, got %v", err)
	}
}

func TestEncodeWebP_Cancelled(t *testing.T) {
	enc, _ := newTestEncoder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := enc.EncodeWebP(ctx, []byte("x"), 80); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.png", "-c:v", "libwebp", "output.webp"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Error opening input file") {
		t.Error("Error() should contain stderr")
	}

	unwrapped := err.Unwrap()
	if unwrapped == nil || unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}
