package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Metadata describes a dropped asset as ffprobe reports it.
type Metadata struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasVideo   bool
	HasAudio   bool
}

// Prober reads media metadata with ffprobe. Sources may be local paths or URLs.
type Prober struct {
	ffprobePath string
	logger      zerolog.Logger
}

func NewProber(logger zerolog.Logger) *Prober {
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}

	return &Prober{
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

func (p *Prober) IsAvailable() bool {
	_, err := exec.LookPath(p.ffprobePath)
	return err == nil
}

func (p *Prober) Probe(ctx context.Context, src string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		src,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		p.logger.Debug().Err(err).Str("src", src).Msg("ffprobe failed")
		return nil, fmt.Errorf("ffprobe %s: %w", src, err)
	}

	return parseProbeOutput(output)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func parseProbeOutput(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	meta := &Metadata{}
	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = dur
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if !meta.HasVideo {
				meta.HasVideo = true
				meta.VideoCodec = strings.ToUpper(stream.CodecName)
				meta.Width = stream.Width
				meta.Height = stream.Height
			}
		case "audio":
			if !meta.HasAudio {
				meta.HasAudio = true
				meta.AudioCodec = strings.ToUpper(stream.CodecName)
			}
		}
	}

	return meta, nil
}
