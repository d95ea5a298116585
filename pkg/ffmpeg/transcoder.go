// Package ffmpeg converts downloaded MP4 clips into looping GIFs by
// shelling out to the ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/iconidentify/gifstash/internal/domain"
)

// Options configures a Transcoder. Zero values fall back to sane defaults.
type Options struct {
	FFmpegPath     string        // empty = look up "ffmpeg" in PATH
	Timeout        time.Duration // per-invocation ceiling (default: 60s)
	MaxOutputBytes int64         // reject GIFs larger than this (default: 8MB)
	FPS            int           // output frame rate (default: 15)
	MaxWidth       int           // output width, height scales to keep aspect (default: 480)
	TempDir        string        // scratch directory (empty = os.TempDir)
}

// Transcoder converts video bytes to GIF bytes.
type Transcoder struct {
	ffmpegPath     string
	timeout        time.Duration
	maxOutputBytes int64
	fps            int
	maxWidth       int
	tempDir        string
}

// NewTranscoder creates a transcoder. It fails if the ffmpeg binary
// cannot be found.
func NewTranscoder(opts Options) (*Transcoder, error) {
	path := opts.FFmpegPath
	if path == "" {
		found, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		path = found
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 8 * 1024 * 1024
	}
	if opts.FPS <= 0 {
		opts.FPS = 15
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 480
	}

	return &Transcoder{
		ffmpegPath:     path,
		timeout:        opts.Timeout,
		maxOutputBytes: opts.MaxOutputBytes,
		fps:            opts.FPS,
		maxWidth:       opts.MaxWidth,
		tempDir:        opts.TempDir,
	}, nil
}

// TranscodeToGIF writes videoData to a scratch file, runs a two-pass
// palette conversion, and returns the GIF bytes. Scratch files are
// removed on every path.
func (t *Transcoder) TranscodeToGIF(ctx context.Context, videoData []byte) ([]byte, error) {
	in, err := os.CreateTemp(t.tempDir, "gifstash-in-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create scratch input: %w", err)
	}
	inPath := in.Name()
	defer os.Remove(inPath)

	if _, err := in.Write(videoData); err != nil {
		in.Close()
		return nil, fmt.Errorf("write scratch input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close scratch input: %w", err)
	}

	out, err := os.CreateTemp(t.tempDir, "gifstash-out-*.gif")
	if err != nil {
		return nil, fmt.Errorf("create scratch output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// palettegen/paletteuse keeps the 256-color quantization from
	// banding; dithering recovers gradients.
	filter := fmt.Sprintf(
		"fps=%d,scale='min(%d,iw)':-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse=dither=bayer",
		t.fps, t.maxWidth,
	)

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-i", inPath,
		"-vf", filter,
		"-loop", "0",
		"-y",
		outPath,
	)

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrTranscodeTimeout
		}
		return nil, fmt.Errorf("run ffmpeg: %w", err)
	}

	stat, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}
	if stat.Size() > t.maxOutputBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s",
			domain.ErrGIFTooLarge, formatBytes(stat.Size()), formatBytes(t.maxOutputBytes))
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("ffmpeg produced empty output")
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return data, nil
}

func formatBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return strconv.FormatFloat(float64(n)/mb, 'f', 1, 64) + "MB"
	}
	return strconv.FormatInt(n, 10) + "B"
}

// IsAvailable reports whether the ffmpeg binary is present on the system.
func IsAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Version returns the first line of `ffmpeg -version` output.
func Version(ffmpegPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	output, err := exec.Command(ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	for i, b := range output {
		if b == '\n' {
			return string(output[:i]), nil
		}
	}
	return string(output), nil
}
