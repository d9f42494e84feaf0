package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// StillExtractor grabs a single frame from a video with ffmpeg. It is used
// when a clip has media but its segment has no still-frame URL yet.
type StillExtractor struct {
	ffmpegPath string
	outputDir  string
	logger     zerolog.Logger
}

func NewStillExtractor(outputDir string, logger zerolog.Logger) *StillExtractor {
	ffmpegPath := "ffmpeg"
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		ffmpegPath = path
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		logger.Warn().Err(err).Str("dir", outputDir).Msg("cannot create still output directory")
	}

	return &StillExtractor{
		ffmpegPath: ffmpegPath,
		outputDir:  outputDir,
		logger:     logger,
	}
}

func (x *StillExtractor) IsAvailable() bool {
	_, err := exec.LookPath(x.ffmpegPath)
	return err == nil
}

// PathFor is where the still for src at atSeconds is written.
func (x *StillExtractor) PathFor(src string, atSeconds float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s@%.3f", src, atSeconds)))
	return filepath.Join(x.outputDir, hex.EncodeToString(sum[:12])+".jpg")
}

// Extract writes a 320px-wide JPEG of the frame at atSeconds and returns its path.
// An existing still is reused.
func (x *StillExtractor) Extract(ctx context.Context, src string, atSeconds float64) (string, error) {
	outputPath := x.PathFor(src, atSeconds)
	if _, err := os.Stat(outputPath); err == nil {
		return outputPath, nil
	}
	if atSeconds < 0 {
		atSeconds = 0
	}

	args := []string{
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", src,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, x.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		x.logger.Debug().
			Err(err).
			Str("src", src).
			Str("output", string(output)).
			Msg("ffmpeg still extraction failed")
		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("still file not created: %w", err)
	}

	x.logger.Debug().
		Str("src", src).
		Str("still", outputPath).
		Msg("still extracted")

	return outputPath, nil
}
