// Package remux merges separately downloaded audio and video streams
// into one container by stream copy, using an external ffmpeg binary.
package remux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bilifav/bilifavdl/internal/bili"
)

type Remuxer struct {
	// Path to the ffmpeg binary; "ffmpeg" resolves via PATH.
	FFmpegPath string
	// Upper bound for one mux invocation.
	Timeout time.Duration

	logger *log.Logger
}

func New(ffmpegPath string, logger *log.Logger) *Remuxer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Remuxer{
		FFmpegPath: ffmpegPath,
		Timeout:    10 * time.Minute,
		logger:     logger.WithPrefix("remux"),
	}
}

// Remux combines videoPath and audioPath into outputPath without
// re-encoding and verifies the result is a non-empty file. On failure
// any partial output is removed.
func (r *Remuxer) Remux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.FFmpegPath,
		"-y",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debugf("muxing %s + %s -> %s", videoPath, audioPath, outputPath)
	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return bili.WrapError(bili.ErrKindRemux, fmt.Sprintf("ffmpeg failed: %s", msg), err)
		}
		return bili.WrapError(bili.ErrKindRemux, "ffmpeg failed", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return bili.WrapError(bili.ErrKindRemux, "output file missing after mux", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(outputPath)
		return bili.WrapError(bili.ErrKindRemux, "output file is empty", fmt.Errorf("%s has size 0", outputPath))
	}
	return nil
}
